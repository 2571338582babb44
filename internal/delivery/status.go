package delivery

import (
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
)

type statusSet map[models.DeliveryStatus]struct{}

func set(statuses ...models.DeliveryStatus) statusSet {
	s := make(statusSet, len(statuses))
	for _, status := range statuses {
		s[status] = struct{}{}
	}
	return s
}

// transitions is the one table every write path consults.
// failed -> registered is the only way back for a retried delivery.
var transitions = map[models.DeliveryStatus]statusSet{
	models.StatusRegistered: set(models.StatusArrived, models.StatusFailed, models.StatusReturned),
	models.StatusArrived:    set(models.StatusCollected, models.StatusFailed, models.StatusReturned),
	models.StatusCollected:  set(),
	models.StatusFailed:     set(models.StatusRegistered, models.StatusReturned),
	models.StatusReturned:   set(),
}

// ledgerTransitions is what the ledger contract accepts: collected, failed and
// returned are all terminal on-chain.
var ledgerTransitions = map[models.DeliveryStatus]statusSet{
	models.StatusRegistered: set(models.StatusArrived, models.StatusFailed, models.StatusReturned),
	models.StatusArrived:    set(models.StatusCollected, models.StatusFailed, models.StatusReturned),
	models.StatusCollected:  set(),
	models.StatusFailed:     set(),
	models.StatusReturned:   set(),
}

// CanTransition reports whether a delivery may move from current to next.
func CanTransition(current, next models.DeliveryStatus) bool {
	allowed, ok := transitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// LedgerCanTransition is CanTransition for the ledger contract.
func LedgerCanTransition(current, next models.DeliveryStatus) bool {
	allowed, ok := ledgerTransitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// Terminal reports whether no transition leaves status.
func Terminal(status models.DeliveryStatus) bool {
	return len(transitions[status]) == 0
}

// NextStatuses returns the statuses reachable from current, in lifecycle order.
func NextStatuses(current models.DeliveryStatus) []models.DeliveryStatus {
	next := []models.DeliveryStatus{}
	for _, status := range models.AllStatuses {
		if CanTransition(current, status) {
			next = append(next, status)
		}
	}
	return next
}

// ValidateTransition returns a fault.TransitionError naming both states when the
// move is not allowed.
func ValidateTransition(current, next models.DeliveryStatus) error {
	if !next.Valid() {
		return fault.ErrInvalidStatus
	}
	if !CanTransition(current, next) {
		return fault.TransitionError{From: string(current), To: string(next)}
	}
	return nil
}
