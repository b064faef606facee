package repository

import "gorm.io/gorm"

// applyPagination 为查询追加 LIMIT/OFFSET。
// pageSize 非正数表示不分页；页码非法时回退到首页。
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}
