package checkout

import (
	"errors"
	"reflect"
	"strings"

	"github.com/fjod/go_storefront/domain"
	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateForm checks the payment and shipping fields, trimming surrounding
// whitespace first so blank input counts as missing.
func (o *Orchestrator) validateForm(form domain.CheckoutForm) error {
	payment := domain.PaymentDetails{
		CardNumber: strings.TrimSpace(form.Payment.CardNumber),
		CardHolder: strings.TrimSpace(form.Payment.CardHolder),
		ExpiryDate: strings.TrimSpace(form.Payment.ExpiryDate),
		CVV:        strings.TrimSpace(form.Payment.CVV),
	}
	shipping := domain.ShippingDetails{
		Email:   strings.TrimSpace(form.Shipping.Email),
		Address: strings.TrimSpace(form.Shipping.Address),
	}

	var fields []FieldError
	for _, s := range []any{payment, shipping} {
		err := o.validate.Struct(s)
		if err == nil {
			continue
		}
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
