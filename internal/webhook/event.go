package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tollgate/tollgate/internal/model"
)

// ErrMalformedEvent is returned when a verified payload is not a billing event.
var ErrMalformedEvent = errors.New("malformed event payload")

// Provider event types.
const (
	TypeCheckoutCompleted   = "checkout.session.completed"
	TypeSubscriptionDeleted = "customer.subscription.deleted"
	TypeInvoicePaid         = "invoice.paid"
)

const (
	checkoutModeSubscription = "subscription"
	billingReasonCycle       = "subscription_cycle"
)

// envelope is the outer event shape.
type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// expandable decodes a field that is either an ID string or an expanded
// object carrying an "id".
type expandable string

func (e *expandable) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*e = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandable(s)
		return nil
	default:
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*e = expandable(obj.ID)
		return nil
	}
}

type checkoutSession struct {
	Mode            string     `json:"mode"`
	CustomerEmail   string     `json:"customer_email"`
	Customer        expandable `json:"customer"`
	Subscription    expandable `json:"subscription"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type subscription struct {
	ID       string     `json:"id"`
	Customer expandable `json:"customer"`
}

type invoice struct {
	BillingReason string     `json:"billing_reason"`
	CustomerEmail string     `json:"customer_email"`
	Customer      expandable `json:"customer"`
	Subscription  expandable `json:"subscription"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription expandable `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// ParseEvent decodes a verified payload into a billing event variant.
// Event types this service does not act on decode to an Unrecognized event.
func ParseEvent(payload []byte) (model.BillingEvent, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return model.BillingEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Type == "" {
		return model.BillingEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	ev := model.BillingEvent{
		ID:           env.ID,
		Kind:         model.BillingUnrecognized,
		ProviderType: env.Type,
	}

	var err error
	switch env.Type {
	case TypeCheckoutCompleted:
		err = decodeCheckout(env.Data.Object, &ev)
	case TypeSubscriptionDeleted:
		err = decodeSubscriptionDeleted(env.Data.Object, &ev)
	case TypeInvoicePaid:
		err = decodeInvoicePaid(env.Data.Object, &ev)
	}
	if err != nil {
		return model.BillingEvent{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, env.Type, err)
	}
	return ev, nil
}

func decodeCheckout(raw json.RawMessage, ev *model.BillingEvent) error {
	var s checkoutSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	// One-off payments do not change the subscription state.
	if s.Mode != checkoutModeSubscription {
		return nil
	}

	ev.Kind = model.BillingSubscriptionActivated
	ev.CustomerEmail = s.CustomerEmail
	if ev.CustomerEmail == "" && s.CustomerDetails != nil {
		ev.CustomerEmail = s.CustomerDetails.Email
	}
	ev.CustomerID = string(s.Customer)
	ev.SubscriptionID = string(s.Subscription)
	return nil
}

func decodeSubscriptionDeleted(raw json.RawMessage, ev *model.BillingEvent) error {
	var s subscription
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	ev.Kind = model.BillingSubscriptionCancelled
	ev.SubscriptionID = s.ID
	ev.CustomerID = string(s.Customer)
	return nil
}

func decodeInvoicePaid(raw json.RawMessage, ev *model.BillingEvent) error {
	var inv invoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return err
	}
	// Only renewals reset the allowance; the first invoice is covered by checkout.
	if inv.BillingReason != billingReasonCycle {
		return nil
	}

	sub := string(inv.Subscription)
	if sub == "" && inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		sub = string(inv.Parent.SubscriptionDetails.Subscription)
	}
	if sub == "" {
		return nil
	}

	ev.Kind = model.BillingSubscriptionRenewed
	ev.SubscriptionID = sub
	ev.CustomerID = string(inv.Customer)
	ev.CustomerEmail = inv.CustomerEmail
	return nil
}
