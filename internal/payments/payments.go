package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// Client charges package purchases through Stripe and returns the payment
// intent id as the audit reference.
type Client struct {
	api *client.API
}

// New creates a Stripe-backed payment client.
func New(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("stripe api key required")
	}
	api := &client.API{}
	api.Init(apiKey, nil)
	return &Client{api: api}, nil
}

// Charge creates a payment intent for the given USD amount and returns its
// id. The amount is converted to cents; fractional cents are rejected
// upstream by package prices being fixed two-decimal values.
func (c *Client) Charge(ctx context.Context, userID string, amountUSD float64, description string) (string, error) {
	cents := int64(amountUSD*100 + 0.5)
	if cents <= 0 {
		return "", fmt.Errorf("invalid charge amount %.2f", amountUSD)
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(cents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(description),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("create payment intent: %w", err)
	}
	return intent.ID, nil
}
