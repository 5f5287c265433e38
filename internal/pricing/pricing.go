// Package pricing содержит чистые функции расчёта стоимости пополнений и заказов.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-panel/internal/model"
)

var (
	hundred  = decimal.NewFromInt(100)
	thousand = decimal.NewFromInt(1000)
)

// TopUpQuote описывает результат расчёта пополнения.
type TopUpQuote struct {
	Amount decimal.Decimal
	Fee    decimal.Decimal
	Bonus  decimal.Decimal
	Total  decimal.Decimal
}

// ComputeTopUp рассчитывает комиссию шлюза, бонус и итог к оплате.
// Бонус прибавляется к итогу, так устроен расчёт на витрине.
func ComputeTopUp(amount decimal.Decimal, gw model.PaymentGateway, tiers []model.BonusTier, bonusEnabled bool) (TopUpQuote, error) {
	amount = model.RoundMoney(amount)
	if !amount.IsPositive() {
		return TopUpQuote{}, model.NewValidationError("amount", "must be positive")
	}
	if amount.LessThan(gw.MinAmount) {
		return TopUpQuote{}, model.NewValidationError("amount", "minimum is %s", gw.MinAmount.StringFixed(2))
	}
	if gw.MaxAmount.IsPositive() && amount.GreaterThan(gw.MaxAmount) {
		return TopUpQuote{}, model.NewValidationError("amount", "maximum is %s", gw.MaxAmount.StringFixed(2))
	}

	fee := model.RoundMoney(amount.Mul(gw.FeePercentage).Div(hundred).Add(gw.FeeFixed))

	bonus := decimal.Zero
	if bonusEnabled {
		if tier, ok := SelectTier(amount, tiers); ok {
			bonus = model.RoundMoney(amount.Mul(tier.BonusPercentage).Div(hundred))
		}
	}

	return TopUpQuote{
		Amount: amount,
		Fee:    fee,
		Bonus:  bonus,
		Total:  amount.Add(fee).Add(bonus),
	}, nil
}

// SelectTier возвращает активный уровень с наибольшим порогом, не превышающим сумму.
func SelectTier(amount decimal.Decimal, tiers []model.BonusTier) (model.BonusTier, bool) {
	var (
		best  model.BonusTier
		found bool
	)
	for _, t := range tiers {
		if !t.Active || t.MinAmount.GreaterThan(amount) {
			continue
		}
		if !found || t.MinAmount.GreaterThan(best.MinAmount) {
			best = t
			found = true
		}
	}
	return best, found
}

// ComputeOrderPrice рассчитывает цену заказа по цене за 1000 единиц.
func ComputeOrderPrice(svc model.Service, quantity int64, comments []string) (decimal.Decimal, error) {
	if quantity < svc.MinQuantity || quantity > svc.MaxQuantity {
		return decimal.Zero, model.NewValidationError("quantity",
			"must be between %d and %d", svc.MinQuantity, svc.MaxQuantity)
	}
	if svc.CommentsRequired && int64(len(comments)) != quantity {
		return decimal.Zero, model.NewValidationError("comments",
			"expected %d comments, got %d", quantity, len(comments))
	}
	return model.RoundMoney(svc.PricePer1000.Mul(decimal.NewFromInt(quantity)).Div(thousand)), nil
}

// ApplyDiscount уменьшает цену на процент скидочного купона.
func ApplyDiscount(price, percent decimal.Decimal) decimal.Decimal {
	if !percent.IsPositive() {
		return price
	}
	if percent.GreaterThanOrEqual(hundred) {
		return decimal.Zero
	}
	return model.RoundMoney(price.Sub(price.Mul(percent).Div(hundred)))
}

// ReferralPayout рассчитывает вознаграждение пригласившему за пополнение.
func ReferralPayout(amount, percent decimal.Decimal) decimal.Decimal {
	if !percent.IsPositive() {
		return decimal.Zero
	}
	return model.RoundMoney(amount.Mul(percent).Div(hundred))
}
