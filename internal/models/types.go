package models

import (
	"database/sql/driver"
	"encoding/json"
)

// StringArray 字符串数组类型，JSON 编码存储
type StringArray []string

// Value 实现 driver.Valuer 接口
func (s StringArray) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan 实现 sql.Scanner 接口
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = StringArray{}
		return nil
	}
	bytes, ok := normalizeJSONBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// UintArray 无符号整数数组类型，JSON 编码存储（优惠券适用范围等）
type UintArray []uint

// Value 实现 driver.Valuer 接口
func (u UintArray) Value() (driver.Value, error) {
	if u == nil {
		return nil, nil
	}
	return json.Marshal(u)
}

// Scan 实现 sql.Scanner 接口
func (u *UintArray) Scan(value interface{}) error {
	if value == nil {
		*u = UintArray{}
		return nil
	}
	bytes, ok := normalizeJSONBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, u)
}

// Contains 判断数组是否包含指定值
func (u UintArray) Contains(id uint) bool {
	for _, v := range u {
		if v == id {
			return true
		}
	}
	return false
}

// Contains 判断数组是否包含指定值
func (s StringArray) Contains(value string) bool {
	for _, v := range s {
		if v == value {
			return true
		}
	}
	return false
}

func normalizeJSONBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}
