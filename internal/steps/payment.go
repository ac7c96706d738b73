package steps

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/parleyhq/parley/internal/payment"
	"github.com/parleyhq/parley/pkg/api"
)

type (
	// CollectPayment provisions a payment link bound to a one-shot wait
	// token and suspends the workflow until the provider reports on it.
	// Re-entry while suspended replays the existing link instead of
	// minting a second one
	CollectPayment struct {
		payments    payment.Client
		callbackURL string
		sku         string
		priceMinor  int64
		currency    string
	}

	// PaymentOption configures the payment step
	PaymentOption func(*CollectPayment)
)

// CollectPaymentID identifies the step in workflow definitions
const CollectPaymentID api.StepID = "collect_payment"

// Report pricing defaults
const (
	DefaultReportSKU        = "detailed_report"
	DefaultReportPriceMinor = 49900
	DefaultReportCurrency   = "INR"
)

var (
	_ api.Step      = (*CollectPayment)(nil)
	_ api.EventStep = (*CollectPayment)(nil)
)

// WithPrice overrides the default report price
func WithPrice(minor int64, currency string) PaymentOption {
	return func(s *CollectPayment) {
		s.priceMinor = minor
		s.currency = currency
	}
}

// WithSKU overrides the purchase SKU the link and its callbacks are
// validated against
func WithSKU(sku string) PaymentOption {
	return func(s *CollectPayment) {
		s.sku = sku
	}
}

// NewCollectPayment creates the payment step. callbackURL is where the
// provider reports captures, expiries, and failures
func NewCollectPayment(
	client payment.Client, callbackURL string, opts ...PaymentOption,
) *CollectPayment {
	res := &CollectPayment{
		payments:    client,
		callbackURL: callbackURL,
		sku:         DefaultReportSKU,
		priceMinor:  DefaultReportPriceMinor,
		currency:    DefaultReportCurrency,
	}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

func (s *CollectPayment) ID() api.StepID {
	return CollectPaymentID
}

func (s *CollectPayment) Execute(
	ctx context.Context, msg *api.Message, _ *api.Session, wc api.Context,
) (*api.StepResult, error) {
	if wc.Has(KeyPaymentLinkURL) {
		return s.replay(wc), nil
	}

	token := newWaitToken(msg.UserID, s.sku)
	name := wc.GetString(KeyReportProfileName, "")

	link, err := s.payments.CreateLink(ctx, &payment.LinkRequest{
		UserID:      msg.UserID,
		Token:       token,
		SKU:         s.sku,
		Description: fmt.Sprintf("Detailed birth chart report for %s", name),
		AmountMinor: s.priceMinor,
		Currency:    s.currency,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("payment link creation failed: %w", err)
	}

	text := fmt.Sprintf(
		"The detailed report for %s costs %s. Pay here and I'll start "+
			"on it right away: %s", name, s.price(), link.URL,
	)
	return api.NewResult(api.ActionWait).
		WithText(text).
		WithWait(token, api.EventPaymentCaptured).
		WithUpdate(KeyPaymentToken, string(token)).
		WithUpdate(KeyPaymentSKU, s.sku).
		WithUpdate(KeyPaymentLinkURL, link.URL).
		WithUpdate(KeyPaymentReference, link.Reference), nil
}

// OnEvent resumes the suspended step. The event must echo the wait token
// the link was provisioned with, and any SKU it carries must match the
// one on record; mismatches are dropped as unhandled so the instance
// keeps waiting for the genuine callback. Capture moves on to rendering,
// a failure keeps the instance waiting on the same link, and an expired
// link gives up
func (s *CollectPayment) OnEvent(
	_ context.Context, ev *api.Event, wc api.Context,
) (*api.StepResult, error) {
	token := api.Token(wc.GetString(KeyPaymentToken, ""))
	if ev.Token != token {
		return nil, fmt.Errorf("%w: token mismatch", api.ErrEventUnhandled)
	}
	if sku := ev.PayloadString("sku", ""); sku != "" &&
		sku != wc.GetString(KeyPaymentSKU, s.sku) {
		return nil, fmt.Errorf("%w: sku mismatch", api.ErrEventUnhandled)
	}

	switch ev.Type {
	case api.EventPaymentCaptured:
		return api.NewResult(api.ActionContinue).
			WithText("Payment received, thank you!").
			WithUpdate(KeyPaymentStatus, "captured"), nil

	case api.EventPaymentFailed:
		text := fmt.Sprintf(
			"That payment didn't go through. You can try again: %s",
			wc.GetString(KeyPaymentLinkURL, ""),
		)
		return api.NewResult(api.ActionWait).
			WithText(text).
			WithWait(token, api.EventPaymentCaptured).
			WithUpdate(KeyPaymentStatus, "failed"), nil

	case api.EventPaymentExpired:
		return api.NewResult(api.ActionAbort).
			WithText("The payment link has expired. Ask me for the " +
				"report again whenever you're ready.").
			WithUpdate(KeyPaymentStatus, "expired"), nil
	}

	return nil, fmt.Errorf("%w: %s", api.ErrEventUnhandled, ev.Type)
}

// replay re-sends the link already provisioned for this instance
func (s *CollectPayment) replay(wc api.Context) *api.StepResult {
	token := api.Token(wc.GetString(KeyPaymentToken, ""))
	text := fmt.Sprintf(
		"Still waiting on the payment. Here's your link again: %s",
		wc.GetString(KeyPaymentLinkURL, ""),
	)
	return api.NewResult(api.ActionWait).
		WithText(text).
		WithWait(token, api.EventPaymentCaptured)
}

func (s *CollectPayment) price() string {
	return fmt.Sprintf("%s %d.%02d",
		s.currency, s.priceMinor/100, s.priceMinor%100)
}

// newWaitToken derives the one-shot wait token from the purchaser, the
// SKU, and a fresh nonce
func newWaitToken(userID api.UserID, sku string) api.Token {
	return api.Token(fmt.Sprintf("%s.%s.%s", userID, sku, uuid.NewString()))
}
