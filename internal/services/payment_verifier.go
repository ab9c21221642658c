package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ticket-engine/internal/logger"
)

var (
	ErrPaymentNotSettled = errors.New("payment has not settled")
	ErrPaymentMismatch   = errors.New("payment amount does not cover the order")
)

// PaymentVerifier cross-checks order confirmations against Stripe when the
// buyer paid by card. Orders whose transaction id is not a Stripe payment
// intent (bank transfer reference, cash receipt) pass through for manual
// review.
type PaymentVerifier struct {
	api *client.API
	log *logger.Logger
}

func NewPaymentVerifier(secretKey string, log *logger.Logger) *PaymentVerifier {
	if secretKey == "" {
		log.Warn("PAYMENT", "STRIPE_SECRET_KEY not set - card payments will not be cross-checked")
		return &PaymentVerifier{log: log}
	}
	return &PaymentVerifier{api: client.New(secretKey, nil), log: log}
}

// VerifyTransaction confirms that a Stripe payment intent has settled for at
// least the order amount. Non-Stripe references and an unconfigured verifier
// are accepted without a check.
func (v *PaymentVerifier) VerifyTransaction(ctx context.Context, transactionID string, amount float64) error {
	if !strings.HasPrefix(transactionID, "pi_") {
		return nil
	}
	if v.api == nil {
		v.log.Warn("PAYMENT", fmt.Sprintf("Accepting %s without verification (no Stripe key configured)", transactionID))
		return nil
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := v.api.PaymentIntents.Get(transactionID, params)
	if err != nil {
		return fmt.Errorf("failed to retrieve payment intent %s: %w", transactionID, err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		v.log.LogSecurity("PAYMENT_UNSETTLED", fmt.Sprintf("Payment intent %s in status %s", transactionID, intent.Status))
		return fmt.Errorf("%w: intent %s is %s", ErrPaymentNotSettled, transactionID, intent.Status)
	}

	// Stripe amounts are in the smallest currency unit.
	expected := int64(math.Round(amount * 100))
	if intent.Amount < expected {
		v.log.LogSecurity("PAYMENT_MISMATCH", fmt.Sprintf("Payment intent %s paid %d, order needs %d", transactionID, intent.Amount, expected))
		return fmt.Errorf("%w: paid %d of %d", ErrPaymentMismatch, intent.Amount, expected)
	}

	v.log.Info("PAYMENT", fmt.Sprintf("Payment intent %s verified for %d", transactionID, intent.Amount))
	return nil
}
