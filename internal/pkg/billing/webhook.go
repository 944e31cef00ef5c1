package billing

import (
	"strings"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ManuelReschke/paygate/internal/pkg/apperr"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "Stripe-Signature"

// Event is a verified webhook event.
type Event struct {
	ID     string
	Type   string
	Object map[string]any
}

// EventVerifier authenticates webhook payloads with the endpoint secret.
type EventVerifier struct {
	secret string
}

func NewEventVerifier(secret string) *EventVerifier {
	return &EventVerifier{secret: secret}
}

// Verify checks the signature header against payload and decodes the event.
// Any failure is KindInvalidSignature; no event data is trusted before this succeeds.
func (v *EventVerifier) Verify(payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, apperr.New(apperr.KindInvalidSignature, "missing "+SignatureHeader+" header")
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindInvalidSignature, Message: "invalid webhook payload", Detail: err.Error(), Cause: err}
	}
	if ev.Data == nil || ev.Data.Object == nil {
		return nil, apperr.New(apperr.KindMalformedEvent, "event has no data object")
	}
	return &Event{ID: ev.ID, Type: string(ev.Type), Object: ev.Data.Object}, nil
}
