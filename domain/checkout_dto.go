package domain

import "github.com/shopspring/decimal"

// Currency charged by the payment service.
const Currency = "USD"

type PaymentDetails struct {
	CardNumber string `json:"cardNumber" validate:"required,max=19"`
	CardHolder string `json:"cardHolder" validate:"required"`
	ExpiryDate string `json:"expiryDate" validate:"required,max=7"`
	CVV        string `json:"cvv" validate:"required,max=4"`
}

type ShippingDetails struct {
	Email   string `json:"email" validate:"required,email"`
	Address string `json:"address" validate:"required"`
}

// CheckoutForm holds the fields of one checkout submission. It lives only for
// the duration of that submission.
type CheckoutForm struct {
	Payment  PaymentDetails
	Shipping ShippingDetails
}

type CheckoutResult struct {
	CheckoutID string
	OrderID    string
	Total      decimal.Decimal
	Message    string
}
