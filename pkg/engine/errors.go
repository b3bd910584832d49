package engine

import "errors"

// Rejection taxonomy. Every rejection is synchronous and happens before any
// mutation: a command either applies in full or leaves state untouched.
var (
	ErrValidation             = errors.New("invalid order parameters")
	ErrInvalidRiskExit        = errors.New("risk exit on wrong side of order price")
	ErrNoCounterparty         = errors.New("no counterparty for market order")
	ErrNotFoundOrUnauthorized = errors.New("order not found or not owned by requester")
	ErrInvalidState           = errors.New("order is in a terminal state")
	ErrQuantityBelowExecuted  = errors.New("quantity below already executed amount")
	ErrUnknownCommand         = errors.New("unknown command type")
	ErrEngineStopped          = errors.New("engine stopped")
)

// RejectCode maps a rejection to its wire code.
func RejectCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRiskExit):
		return "InvalidRiskExit"
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrNoCounterparty):
		return "NoCounterparty"
	case errors.Is(err, ErrNotFoundOrUnauthorized):
		return "NotFoundOrUnauthorized"
	case errors.Is(err, ErrInvalidState):
		return "InvalidState"
	case errors.Is(err, ErrQuantityBelowExecuted):
		return "QuantityBelowExecuted"
	case errors.Is(err, ErrUnknownCommand):
		return "UnknownCommand"
	default:
		return "InternalError"
	}
}
