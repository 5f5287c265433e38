package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/smm-panel/internal/model"
)

func TestRedeemCoupon(t *testing.T) {
	f := newFixture(t)
	u := f.userWithBalance(t, "0")
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	f.repo.coupons["WELCOME"] = &model.Coupon{ID: uuid.New(), Code: "WELCOME", Type: model.CouponBalance, Value: dec("5"), Active: true}
	f.repo.coupons["OLD"] = &model.Coupon{ID: uuid.New(), Code: "OLD", Type: model.CouponBalance, Value: dec("5"), Active: true, ExpiresAt: &past}
	f.repo.coupons["SOON"] = &model.Coupon{ID: uuid.New(), Code: "SOON", Type: model.CouponBalance, Value: dec("5"), Active: true, StartsAt: &future}
	f.repo.coupons["OFF"] = &model.Coupon{ID: uuid.New(), Code: "OFF", Type: model.CouponBalance, Value: dec("5")}
	f.repo.coupons["SALE"] = &model.Coupon{ID: uuid.New(), Code: "SALE", Type: model.CouponDiscount, Value: dec("10"), Active: true}

	res, err := f.svc.RedeemCoupon(ctx, u.ID, "WELCOME")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	require.NotNil(t, res.Transaction)
	assert.Equal(t, model.TransactionBonus, res.Transaction.Type)
	assert.True(t, f.balance(t, u.ID).Equal(dec("5")))

	tests := []struct {
		code   string
		reason model.CouponReason
	}{
		{"WELCOME", model.CouponAlreadyUsed},
		{"OLD", model.CouponExpired},
		{"SOON", model.CouponNotStarted},
		{"OFF", model.CouponInactive},
		{"SALE", model.CouponWrongType},
		{"MISSING", model.CouponNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			res, err := f.svc.RedeemCoupon(ctx, u.ID, tt.code)
			require.NoError(t, err)
			assert.False(t, res.Applied)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
	assert.True(t, f.balance(t, u.ID).Equal(dec("5")))

	_, err = f.svc.RedeemCoupon(ctx, u.ID, "  ")
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRedeemCoupon_ConcurrentUsesRespectCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	maxUses := int64(3)
	f.repo.coupons["LIMITED"] = &model.Coupon{
		ID: uuid.New(), Code: "LIMITED", Type: model.CouponBalance, Value: dec("1"), Active: true, MaxUses: &maxUses,
	}

	users := make([]*model.User, 20)
	for i := range users {
		users[i] = f.userWithBalance(t, "0")
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
		reasons = make(map[model.CouponReason]int)
	)
	for _, u := range users {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			res, err := f.svc.RedeemCoupon(ctx, id, "LIMITED")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Applied {
				applied++
				return
			}
			reasons[res.Reason]++
		}(u.ID)
	}
	wg.Wait()

	assert.Equal(t, 3, applied)
	assert.Equal(t, len(users)-3, reasons[model.CouponMaxUsesReached])

	c, err := f.repo.GetCouponByCode(ctx, "LIMITED")
	require.NoError(t, err)
	assert.Equal(t, maxUses, c.UsesCount)
}
