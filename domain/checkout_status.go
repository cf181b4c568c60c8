package domain

type CheckoutStatus string

const (
	CheckoutStatusIdle       CheckoutStatus = "IDLE"
	CheckoutStatusSubmitting CheckoutStatus = "SUBMITTING"
	CheckoutStatusSucceeded  CheckoutStatus = "SUCCEEDED"
	CheckoutStatusFailed     CheckoutStatus = "FAILED"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusSucceeded || s == CheckoutStatusFailed
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

// CanTransitionTo reports whether the checkout state machine allows moving
// from s to next. A new submission is accepted from every state except
// SUBMITTING.
func CanTransitionTo(s, next CheckoutStatus) bool {
	switch s {
	case CheckoutStatusIdle:
		return next == CheckoutStatusSubmitting
	case CheckoutStatusSubmitting:
		return next == CheckoutStatusSucceeded || next == CheckoutStatusFailed
	case CheckoutStatusSucceeded, CheckoutStatusFailed:
		return next == CheckoutStatusIdle || next == CheckoutStatusSubmitting
	default:
		return false
	}
}
