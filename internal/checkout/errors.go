package checkout

import (
	"errors"
	"strings"
)

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// StepError is a checkout failure at one remote step. Error() is the reason
// shown to the user.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError lists the checkout form fields that are missing or invalid.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return "please fill in all fields correctly: " + strings.Join(names, ", ")
}
