package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCouponRejection(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	one := int64(1)

	tests := []struct {
		name   string
		coupon Coupon
		reason CouponReason
		reject bool
	}{
		{name: "usable", coupon: Coupon{Active: true, StartsAt: &past, ExpiresAt: &future}},
		{name: "inactive", coupon: Coupon{}, reason: CouponInactive, reject: true},
		{name: "not started", coupon: Coupon{Active: true, StartsAt: &future}, reason: CouponNotStarted, reject: true},
		{name: "expired", coupon: Coupon{Active: true, ExpiresAt: &past}, reason: CouponExpired, reject: true},
		{name: "expires exactly now", coupon: Coupon{Active: true, ExpiresAt: &now}, reason: CouponExpired, reject: true},
		{name: "ceiling", coupon: Coupon{Active: true, MaxUses: &one, UsesCount: 1}, reason: CouponMaxUsesReached, reject: true},
		{name: "unlimited", coupon: Coupon{Active: true, UsesCount: 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, reject := tt.coupon.Rejection(now)
			assert.Equal(t, tt.reject, reject)
			assert.Equal(t, tt.reason, reason)
		})
	}
}
