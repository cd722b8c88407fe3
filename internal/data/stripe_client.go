package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"xinyuan_tech/clinic-billing-service/internal/biz"
	"xinyuan_tech/clinic-billing-service/internal/conf"
	"xinyuan_tech/clinic-billing-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// stripeGateway implements the payment gateway over the Stripe SDK.
type stripeGateway struct {
	webhookSecret string
	log           *log.Helper
}

// NewStripeGateway creates the Stripe payment gateway client
func NewStripeGateway(c *conf.Bootstrap, logger log.Logger) biz.PaymentGateway {
	stripe.Key = c.Stripe.SecretKey
	return &stripeGateway{
		webhookSecret: c.Stripe.WebhookSecret,
		log:           log.NewHelper(logger),
	}
}

// VerifyEvent checks the provider signature over the exact raw body and
// maps the event. Parsing before verification is deliberately impossible
// here: the raw bytes go straight into the signature check.
func (g *stripeGateway) VerifyEvent(payload []byte, signature string) (*biz.ProviderEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}
	return g.mapEvent(&event, payload)
}

// ParseEvent maps a stored payload without re-verifying the signature,
// for replaying events that already passed verification on delivery.
func (g *stripeGateway) ParseEvent(payload []byte) (*biz.ProviderEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("event payload has no id")
	}
	return g.mapEvent(&event, payload)
}

// GetSubscription fetches the authoritative subscription from Stripe.
func (g *stripeGateway) GetSubscription(ctx context.Context, id string) (*biz.ProviderSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(id, params)
	if err != nil {
		g.log.Errorf("Failed to retrieve subscription %s: %v", id, err)
		return nil, err
	}
	return mapAPISubscription(sub), nil
}

// Payload shapes are decoded with local structs rather than the SDK's
// types: webhook payloads follow the account's pinned API version, which
// may not match the SDK's, and the reconciler needs only a few fields.

type eventCheckoutSession struct {
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type eventSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				Product string `json:"product"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type eventInvoice struct {
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// mapEvent turns a decoded Stripe event into the tagged variant the
// reconciler dispatches on.
func (g *stripeGateway) mapEvent(event *stripe.Event, payload []byte) (*biz.ProviderEvent, error) {
	ev := &biz.ProviderEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		Kind:       biz.KindUnhandled,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
		Payload:    payload,
	}

	switch string(event.Type) {
	case constants.EventCheckoutCompleted:
		var session eventCheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		email := strings.TrimSpace(session.CustomerEmail)
		if email == "" {
			email = strings.TrimSpace(session.CustomerDetails.Email)
		}
		ev.Kind = biz.KindCheckoutCompleted
		ev.Checkout = &biz.CheckoutSession{
			Mode:           session.Mode,
			CustomerID:     session.Customer,
			CustomerEmail:  email,
			SubscriptionID: session.Subscription,
		}

	case constants.EventSubscriptionUpdated, constants.EventSubscriptionDeleted:
		var sub eventSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		if string(event.Type) == constants.EventSubscriptionUpdated {
			ev.Kind = biz.KindSubscriptionUpdated
		} else {
			ev.Kind = biz.KindSubscriptionDeleted
		}
		ev.Subscription = mapEventSubscription(&sub)

	case constants.EventInvoicePaymentSucceeded, constants.EventInvoicePaymentFailed:
		var inv eventInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("failed to decode invoice: %w", err)
		}
		if string(event.Type) == constants.EventInvoicePaymentSucceeded {
			ev.Kind = biz.KindInvoicePaymentSucceeded
		} else {
			ev.Kind = biz.KindInvoicePaymentFailed
		}
		subID := inv.Subscription
		if subID == "" {
			// Newer API versions nest the subscription reference under parent.
			subID = inv.Parent.SubscriptionDetails.Subscription
		}
		ev.Invoice = &biz.ProviderInvoice{
			CustomerID:     inv.Customer,
			SubscriptionID: subID,
		}
	}

	return ev, nil
}

func mapEventSubscription(sub *eventSubscription) *biz.ProviderSubscription {
	out := &biz.ProviderSubscription{
		ID:                sub.ID,
		CustomerID:        sub.Customer,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	// Period bounds moved from the subscription to its items in newer API
	// versions; take whichever is populated.
	start, end := sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			start = item.CurrentPeriodStart
		}
		if item.CurrentPeriodEnd > 0 {
			end = item.CurrentPeriodEnd
		}
		out.ProductID = item.Price.Product
	}
	if start > 0 {
		out.PeriodStart = time.Unix(start, 0).UTC()
	}
	if end > 0 {
		out.PeriodEnd = time.Unix(end, 0).UTC()
	}
	return out
}

func mapAPISubscription(sub *stripe.Subscription) *biz.ProviderSubscription {
	out := &biz.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			out.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			out.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
		if item.Price != nil && item.Price.Product != nil {
			out.ProductID = item.Price.Product.ID
		}
	}
	return out
}
