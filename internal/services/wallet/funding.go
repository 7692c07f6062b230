package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/charge"
	"github.com/stripe/stripe-go/v72/token"
)

// StripeCharger settles card top-ups through Stripe. Raw card numbers are
// tokenized first; pre-issued test tokens (tok_...) are passed through.
type StripeCharger struct{}

func NewStripeCharger() *StripeCharger {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	return &StripeCharger{}
}

func (c *StripeCharger) Charge(ctx context.Context, card CardInput, amount float64, currency string) (string, error) {
	sourceToken := card.CardNumber
	if !strings.HasPrefix(sourceToken, "tok_") {
		if !isValidCardNumber(card.CardNumber) {
			return "", errors.New("invalid card number: failed Luhn check")
		}
		params := &stripe.TokenParams{
			Card: &stripe.CardParams{
				Number:   stripe.String(card.CardNumber),
				ExpMonth: stripe.String(card.ExpiryMonth),
				ExpYear:  stripe.String(card.ExpiryYear),
				CVC:      stripe.String(card.CVC),
			},
		}
		params.Context = ctx

		tok, err := token.New(params)
		if err != nil {
			return "", fmt.Errorf("stripe tokenization failed: %w", err)
		}
		sourceToken = tok.ID
	}

	chargeParams := &stripe.ChargeParams{
		Amount:      stripe.Int64(int64(amount * 100)),
		Currency:    stripe.String(strings.ToLower(currency)),
		Description: stripe.String("wallet top-up"),
	}
	chargeParams.Context = ctx
	if err := chargeParams.SetSource(sourceToken); err != nil {
		return "", fmt.Errorf("invalid charge source: %w", err)
	}

	ch, err := charge.New(chargeParams)
	if err != nil {
		return "", fmt.Errorf("stripe charge failed: %w", err)
	}
	return ch.ID, nil
}

// Luhn Algorithm: Used to validate credit card numbers
func isValidCardNumber(cardNumber string) bool {
	if cardNumber == "" {
		return false
	}

	var sum int
	shouldDouble := false

	// Iterate over the digits of the card number from right to left
	for i := len(cardNumber) - 1; i >= 0; i-- {
		if cardNumber[i] < '0' || cardNumber[i] > '9' {
			return false
		}
		digit := int(cardNumber[i] - '0')

		if shouldDouble {
			digit = digit * 2
			if digit > 9 {
				digit -= 9
			}
		}

		sum += digit
		shouldDouble = !shouldDouble
	}

	// Card is valid if the sum is a multiple of 10
	return sum%10 == 0
}
