package client

import (
	"context"
	"net/http"

	"github.com/fjod/go_storefront/domain"
	"github.com/shopspring/decimal"
)

type PaymentClient struct {
	base *baseClient
}

func NewPaymentClient(baseURL string, opts ...Option) *PaymentClient {
	return &PaymentClient{base: newBaseClient("payment-service", baseURL, opts...)}
}

type paymentRequest struct {
	OrderID    string  `json:"orderId"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	CardNumber string  `json:"cardNumber"`
	CardHolder string  `json:"cardHolder"`
	ExpiryDate string  `json:"expiryDate"`
	CVV        string  `json:"cvv"`
}

type PaymentResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ProcessPayment charges amount for orderID. A 2xx answer with
// success=false is returned as an *APIError carrying the service message.
func (c *PaymentClient) ProcessPayment(ctx context.Context, details domain.PaymentDetails, amount decimal.Decimal, orderID string) (*PaymentResponse, error) {
	req := paymentRequest{
		OrderID:    orderID,
		Amount:     amount.InexactFloat64(),
		Currency:   domain.Currency,
		CardNumber: details.CardNumber,
		CardHolder: details.CardHolder,
		ExpiryDate: details.ExpiryDate,
		CVV:        details.CVV,
	}

	var resp PaymentResponse
	if err := c.base.do(ctx, opProcessPayment, http.MethodPost, "/api/payments", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = opProcessPayment.fallback
		}
		return nil, &APIError{Op: opProcessPayment.name, StatusCode: http.StatusOK, Message: msg}
	}
	return &resp, nil
}
