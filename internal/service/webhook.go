package service

import (
	"encoding/json"
	"io"
	"net/http"

	"xinyuan_tech/clinic-billing-service/internal/biz"
	bizerrors "xinyuan_tech/clinic-billing-service/internal/errors"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// maxWebhookBody caps inbound payloads; Stripe events stay well under this.
const maxWebhookBody = 1 << 16

// WebhookService terminates the provider webhook endpoint. It is a raw
// net/http handler rather than a framework route: signature verification
// needs the exact body bytes the provider signed, before any decoding.
type WebhookService struct {
	uc  *biz.WebhookUsecase
	log *log.Helper
}

// NewWebhookService creates the webhook ingestion service
func NewWebhookService(uc *biz.WebhookUsecase, logger log.Logger) *WebhookService {
	return &WebhookService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// webhookAck is the body returned once an event is durably recorded. Status
// reflects reconciliation, not delivery: a reconciliation failure still
// acknowledges with 200 so the provider does not redeliver what is already
// in the audit log.
type webhookAck struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Status    string `json:"status,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
}

// HandleStripeWebhook processes one provider delivery.
//
// Status policy: 200 exactly when the event was verified and durably
// recorded; 400 for requests that fail verification (the provider must not
// retry a request that will never verify); 500 only when the event could
// not be durably recorded, so the provider redelivers it.
func (s *WebhookService) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Stripe-Signature")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, kerrors.New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed"))
		return
	}

	// Delivery id correlates log lines for one HTTP delivery; the provider
	// event id is not known until the body verifies.
	deliveryID := uuid.New().String()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.log.Errorf("Failed to read webhook body (delivery %s): %v", deliveryID, err)
		writeError(w, http.StatusBadRequest, kerrors.New(http.StatusBadRequest, "INVALID_BODY", "failed to read request body"))
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		writeError(w, http.StatusBadRequest,
			bizerrors.NewBizError(bizerrors.ErrCodeMissingSignature, "missing Stripe-Signature header"))
		return
	}

	ev, err := s.uc.VerifyEvent(payload, signature)
	if err != nil {
		s.log.Warnf("Webhook signature verification failed (delivery %s): %v", deliveryID, err)
		writeError(w, http.StatusBadRequest,
			bizerrors.NewBizError(bizerrors.ErrCodeInvalidSignature, "signature verification failed"))
		return
	}

	s.log.Infof("Webhook delivery %s verified as event %s (%s)", deliveryID, ev.ID, ev.Type)

	result, err := s.uc.ProcessEvent(r.Context(), ev)
	if err != nil {
		// Not durably recorded. 500 tells the provider to redeliver.
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, webhookAck{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Status:    result.Status,
		Outcome:   result.Outcome,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	se := kerrors.FromError(err)
	writeJSON(w, status, map[string]any{
		"code":    se.Code,
		"reason":  se.Reason,
		"message": se.Message,
	})
}
