package service

import (
	"time"

	"github.com/flashmart-next/internal/constants"
	"github.com/flashmart-next/internal/models"

	"github.com/shopspring/decimal"
)

// CartLine 结算时的购物车行快照
type CartLine struct {
	ProductID   uint         `json:"product_id"`
	CategoryID  uint         `json:"category_id"`
	Name        string       `json:"name"`
	UnitPrice   models.Money `json:"unit_price"`
	Quantity    int          `json:"quantity"`
	IsFlashSale bool         `json:"is_flash_sale"`
	FlashSaleID uint         `json:"flash_sale_id,omitempty"`
}

// Subtotal 该行小计
func (l CartLine) Subtotal() models.Money {
	return models.NewMoneyFromDecimal(l.UnitPrice.Decimal.Mul(decimal.NewFromInt(int64(l.Quantity))))
}

// UserProfile 促销判定所需的用户画像快照
type UserProfile struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Verified  bool      `json:"verified"`
	Premium   bool      `json:"premium"`
}

// NewUserProfile 从用户模型构建画像
func NewUserProfile(user *models.User) UserProfile {
	if user == nil {
		return UserProfile{}
	}
	return UserProfile{
		ID:        user.ID,
		CreatedAt: user.CreatedAt,
		Verified:  user.IsVerified(),
		Premium:   user.IsPremium,
	}
}

// Tags 推导用户标签：注册 30 天内为 new，否则 existing；verified/premium 叠加
func (p UserProfile) Tags(now time.Time) []string {
	tags := make([]string, 0, 3)
	if now.Sub(p.CreatedAt) < time.Duration(constants.NewUserAccountAgeDays)*24*time.Hour {
		tags = append(tags, constants.UserTagNew)
	} else {
		tags = append(tags, constants.UserTagExisting)
	}
	if p.Verified {
		tags = append(tags, constants.UserTagVerified)
	}
	if p.Premium {
		tags = append(tags, constants.UserTagPremium)
	}
	return tags
}

// MatchesAnyTag 判断用户是否命中任一标签，all 恒匹配
func (p UserProfile) MatchesAnyTag(required models.StringArray, now time.Time) bool {
	if len(required) == 0 {
		return true
	}
	if required.Contains(constants.UserTagAll) {
		return true
	}
	for _, tag := range p.Tags(now) {
		if required.Contains(tag) {
			return true
		}
	}
	return false
}

// cartSubtotal 汇总购物车金额
func cartSubtotal(lines []CartLine) models.Money {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal().Decimal)
	}
	return models.NewMoneyFromDecimal(total)
}

// cartQuantity 汇总购物车件数
func cartQuantity(lines []CartLine) int {
	total := 0
	for _, line := range lines {
		total += line.Quantity
	}
	return total
}

// validateCartLines 结算前的基础校验，预留发生前拒绝非法输入
func validateCartLines(lines []CartLine) error {
	if len(lines) == 0 {
		return ErrCartEmpty
	}
	for _, line := range lines {
		if line.ProductID == 0 || line.Quantity <= 0 {
			return ErrInvalidInput
		}
		if line.UnitPrice.Decimal.IsNegative() {
			return ErrInvalidInput
		}
		if line.IsFlashSale && line.FlashSaleID == 0 {
			return ErrInvalidInput
		}
	}
	return nil
}
