package model

import "github.com/shopspring/decimal"

// MoneyScale задаёт число знаков после запятой в денежных колонках (NUMERIC(20,6)).
const MoneyScale = 6

// RoundMoney приводит сумму к масштабу хранения.
// Суммы приводятся к нему до записи в журнал и в заказы.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}
