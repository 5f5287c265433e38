package model

import "time"

// Rejection возвращает причину, по которой купон нельзя применить в момент now.
func (c Coupon) Rejection(now time.Time) (CouponReason, bool) {
	switch {
	case !c.Active:
		return CouponInactive, true
	case c.StartsAt != nil && now.Before(*c.StartsAt):
		return CouponNotStarted, true
	case c.ExpiresAt != nil && !now.Before(*c.ExpiresAt):
		return CouponExpired, true
	case c.MaxUses != nil && c.UsesCount >= *c.MaxUses:
		return CouponMaxUsesReached, true
	}
	return "", false
}
