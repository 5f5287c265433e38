// Package lifecycle описывает конечный автомат статусов заказа.
package lifecycle

import (
	"fmt"
	"math"

	"github.com/mmeshcher/smm-panel/internal/model"
)

// Decision описывает результат проверки перехода.
type Decision int

const (
	// Apply означает, что переход нужно выполнить.
	Apply Decision = iota
	// Noop означает, что заказ уже находится в целевом статусе.
	Noop
)

var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending: {
		model.OrderProcessing, model.OrderInProgress,
		model.OrderFailed, model.OrderCancelled, model.OrderRefunded,
	},
	model.OrderProcessing: {
		model.OrderInProgress, model.OrderCompleted, model.OrderPartial,
		model.OrderFailed, model.OrderCancelled, model.OrderRefunded,
	},
	model.OrderInProgress: {
		model.OrderCompleted, model.OrderPartial,
		model.OrderFailed, model.OrderCancelled, model.OrderRefunded,
	},
	model.OrderCompleted: {model.OrderRefunded},
	model.OrderPartial:   {model.OrderRefunded},
	model.OrderFailed:    {model.OrderRefunded},
}

// Known сообщает, является ли статус допустимым.
func Known(s model.OrderStatus) bool {
	switch s {
	case model.OrderCancelled, model.OrderRefunded:
		return true
	}
	_, ok := transitions[s]
	return ok
}

// IsActive сообщает, что заказ ещё выполняется у поставщика.
func IsActive(s model.OrderStatus) bool {
	return s == model.OrderPending || s == model.OrderProcessing || s == model.OrderInProgress
}

var activeRank = map[model.OrderStatus]int{
	model.OrderPending:    0,
	model.OrderProcessing: 1,
	model.OrderInProgress: 2,
}

// Behind сообщает, что оба статуса активны и status предшествует current.
func Behind(status, current model.OrderStatus) bool {
	a, ok := activeRank[status]
	if !ok {
		return false
	}
	b, ok := activeRank[current]
	return ok && a < b
}

// IsTerminal сообщает, что из статуса нет переходов.
func IsTerminal(s model.OrderStatus) bool {
	return s == model.OrderCancelled || s == model.OrderRefunded
}

// Check проверяет переход from -> to.
// Повтор текущего статуса даёт Noop, запрещённый переход возвращает model.ErrConflict.
func Check(from, to model.OrderStatus) (Decision, error) {
	if !Known(to) {
		return Noop, model.NewValidationError("status", "unknown status %q", to)
	}
	if from == to {
		return Noop, nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return Apply, nil
		}
	}
	return Noop, fmt.Errorf("%w: order status %s cannot change to %s", model.ErrConflict, from, to)
}

// Progress возвращает процент выполнения заказа. Значение не хранится, а вычисляется.
func Progress(o model.Order) int {
	if o.Status == model.OrderCompleted {
		return 100
	}
	if o.Quantity <= 0 {
		return 0
	}
	delivered := float64(o.Quantity-o.Remains) / float64(o.Quantity) * 100
	p := int(math.Round(delivered))
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
