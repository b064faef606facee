package service

import (
	"testing"
	"time"

	"github.com/flashmart-next/internal/constants"
	"github.com/flashmart-next/internal/models"
)

func TestIsApplicableWindowBoundaries(t *testing.T) {
	eval := NewEligibilityEvaluator()
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	startsAt := now
	endsAt := now.Add(time.Hour)
	coupon := &models.Coupon{
		IsActive: true,
		Type:     constants.CouponTypeFixed,
		StartsAt: &startsAt,
		EndsAt:   &endsAt,
	}
	user := UserProfile{ID: 1, CreatedAt: now.AddDate(-1, 0, 0)}
	lines := []CartLine{{ProductID: 1, UnitPrice: money(10), Quantity: 1}}

	// 左闭：开始时刻即生效
	if verdict := eval.IsApplicable(coupon, user, lines, startsAt); !verdict.OK {
		t.Fatalf("coupon should be applicable at starts_at, got %q", verdict.Reason)
	}
	// 右开：结束时刻即失效
	if verdict := eval.IsApplicable(coupon, user, lines, endsAt); verdict.OK || verdict.Reason != ReasonCouponExpired {
		t.Fatalf("coupon should expire at ends_at, got %+v", verdict)
	}
	if verdict := eval.IsApplicable(coupon, user, lines, startsAt.Add(-time.Second)); verdict.OK || verdict.Reason != ReasonCouponNotStarted {
		t.Fatalf("coupon should not start before starts_at, got %+v", verdict)
	}
}

func TestIsApplicableInactiveAndExhausted(t *testing.T) {
	eval := NewEligibilityEvaluator()
	now := time.Now()
	user := UserProfile{ID: 1, CreatedAt: now.AddDate(-1, 0, 0)}
	lines := []CartLine{{ProductID: 1, UnitPrice: money(10), Quantity: 1}}

	inactive := &models.Coupon{IsActive: false}
	if verdict := eval.IsApplicable(inactive, user, lines, now); verdict.OK || verdict.Reason != ReasonCouponInactive {
		t.Fatalf("inactive coupon verdict %+v", verdict)
	}

	exhausted := &models.Coupon{IsActive: true, UsageLimit: 5, UsedCount: 5}
	if verdict := eval.IsApplicable(exhausted, user, lines, now); verdict.OK || verdict.Reason != ReasonUsageExhausted {
		t.Fatalf("exhausted coupon verdict %+v", verdict)
	}
}

func TestIsApplicableUserGates(t *testing.T) {
	eval := NewEligibilityEvaluator()
	now := time.Now()
	lines := []CartLine{{ProductID: 1, UnitPrice: money(10), Quantity: 1}}

	excluded := &models.Coupon{IsActive: true, ExcludedUserIDs: models.UintArray{42}}
	if verdict := eval.IsApplicable(excluded, UserProfile{ID: 42}, lines, now); verdict.OK || verdict.Reason != ReasonUserExcluded {
		t.Fatalf("excluded user verdict %+v", verdict)
	}

	newOnly := &models.Coupon{IsActive: true, ApplicableUserTags: models.StringArray{constants.UserTagNew}}
	newUser := UserProfile{ID: 1, CreatedAt: now.Add(-24 * time.Hour)}
	oldUser := UserProfile{ID: 2, CreatedAt: now.AddDate(0, -6, 0)}
	if verdict := eval.IsApplicable(newOnly, newUser, lines, now); !verdict.OK {
		t.Fatalf("new user should match, got %q", verdict.Reason)
	}
	if verdict := eval.IsApplicable(newOnly, oldUser, lines, now); verdict.OK || verdict.Reason != ReasonUserTagMismatch {
		t.Fatalf("existing user verdict %+v", verdict)
	}

	allTag := &models.Coupon{IsActive: true, ApplicableUserTags: models.StringArray{constants.UserTagAll}}
	if verdict := eval.IsApplicable(allTag, oldUser, lines, now); !verdict.OK {
		t.Fatalf("all tag should always match, got %q", verdict.Reason)
	}
}

func TestIsApplicableScopeFilter(t *testing.T) {
	eval := NewEligibilityEvaluator()
	now := time.Now()
	user := UserProfile{ID: 1, CreatedAt: now.AddDate(-1, 0, 0)}

	coupon := &models.Coupon{
		IsActive:             true,
		ApplicableProductIDs: models.UintArray{100},
	}
	miss := []CartLine{{ProductID: 1, UnitPrice: money(10), Quantity: 1}}
	if verdict := eval.IsApplicable(coupon, user, miss, now); verdict.OK || verdict.Reason != ReasonNoEligibleItems {
		t.Fatalf("scope miss verdict %+v", verdict)
	}

	hit := []CartLine{
		{ProductID: 1, UnitPrice: money(10), Quantity: 1},
		{ProductID: 100, UnitPrice: money(20), Quantity: 1},
	}
	if verdict := eval.IsApplicable(coupon, user, hit, now); !verdict.OK {
		t.Fatalf("single matching line should pass, got %q", verdict.Reason)
	}

	// 排除集合优先于适用集合
	excluded := &models.Coupon{
		IsActive:             true,
		ApplicableProductIDs: models.UintArray{100},
		ExcludedProductIDs:   models.UintArray{100},
	}
	if verdict := eval.IsApplicable(excluded, user, hit, now); verdict.OK || verdict.Reason != ReasonNoEligibleItems {
		t.Fatalf("excluded product verdict %+v", verdict)
	}
}

func TestIsApplicableOrderMinimums(t *testing.T) {
	eval := NewEligibilityEvaluator()
	now := time.Now()
	user := UserProfile{ID: 1, CreatedAt: now.AddDate(-1, 0, 0)}

	minAmount := &models.Coupon{IsActive: true, MinOrderAmount: money(100)}
	cheap := []CartLine{{ProductID: 1, UnitPrice: money(30), Quantity: 2}}
	if verdict := eval.IsApplicable(minAmount, user, cheap, now); verdict.OK || verdict.Reason != ReasonMinOrderNotMet {
		t.Fatalf("min order verdict %+v", verdict)
	}

	minQty := &models.Coupon{IsActive: true, MinQuantity: 3}
	if verdict := eval.IsApplicable(minQty, user, cheap, now); verdict.OK || verdict.Reason != ReasonMinQuantityNotMet {
		t.Fatalf("min quantity verdict %+v", verdict)
	}

	enough := []CartLine{{ProductID: 1, UnitPrice: money(40), Quantity: 3}}
	if verdict := eval.IsApplicable(minAmount, user, enough, now); !verdict.OK {
		t.Fatalf("min order met should pass, got %q", verdict.Reason)
	}
	if verdict := eval.IsApplicable(minQty, user, enough, now); !verdict.OK {
		t.Fatalf("min quantity met should pass, got %q", verdict.Reason)
	}
}
