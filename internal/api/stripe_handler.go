package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

type PaymentMarker interface {
	MarkPaidByCheckoutID(ctx context.Context, checkoutSessionID string) error
}

type StripeWebhookHandler struct {
	WebhookSecret string
	Sessions      PaymentMarker
}

func NewStripeWebhookHandler(webhookSecret string, sessions PaymentMarker) *StripeWebhookHandler {
	return &StripeWebhookHandler{WebhookSecret: webhookSecret, Sessions: sessions}
}

func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logrus.WithError(err).Error("stripe webhook: error reading body")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sigHeader, h.WebhookSecret)
	if err != nil {
		logrus.WithError(err).Warn("stripe webhook: signature verification failed")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil || sess.ID == "" {
			logrus.WithError(err).Error("stripe webhook: bad checkout.session payload")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := h.Sessions.MarkPaidByCheckoutID(r.Context(), sess.ID); err != nil {
			logrus.WithError(err).WithField("checkout_id", sess.ID).Error("stripe webhook: failed to mark session paid")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	default:
		logrus.WithField("type", event.Type).Debug("stripe webhook: unhandled event type")
	}

	w.WriteHeader(http.StatusOK)
}
