package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/smsdesk/bridge/internal/bridge"
	"github.com/smsdesk/bridge/internal/messaging"
	observemetrics "github.com/smsdesk/bridge/internal/observability/metrics"
	"github.com/smsdesk/bridge/internal/phone"
	"github.com/smsdesk/bridge/pkg/logging"
)

var webhookTracer = otel.Tracer("bridge.internal.http.handlers.webhooks")

// WebhookHandler terminates both webhook surfaces: inbound SMS from the
// provider and comment events from the ticket backend.
type WebhookHandler struct {
	controller    *bridge.Controller
	replies       *bridge.ReplyRouter
	webhookSecret string
	metrics       *observemetrics.BridgeMetrics
	logger        *logging.Logger
}

type WebhookConfig struct {
	Controller    *bridge.Controller
	Replies       *bridge.ReplyRouter
	WebhookSecret string
	Metrics       *observemetrics.BridgeMetrics
	Logger        *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		controller:    cfg.Controller,
		replies:       cfg.Replies,
		webhookSecret: cfg.WebhookSecret,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

type inboundResponse struct {
	Success       bool   `json:"success"`
	Action        string `json:"action,omitempty"`
	TicketID      string `json:"ticketId,omitempty"`
	TicketNumber  string `json:"ticketNumber,omitempty"`
	CommentID     string `json:"commentId,omitempty"`
	TicketUpdated *bool  `json:"ticketUpdated,omitempty"`
	Error         string `json:"error,omitempty"`
}

// HandleInboundSMS processes POST /webhooks/sms. The outcome is always
// definitive; a message is never silently dropped.
func (h *WebhookHandler) HandleInboundSMS(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "webhooks.sms.inbound")
	defer span.End()
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency("sms", time.Since(start).Seconds())
	}()

	if h.webhookSecret != "" {
		if !messaging.ValidateTwilioSignature(r, h.webhookSecret, buildAbsoluteURL(r)) {
			h.logger.Warn("invalid twilio signature")
			span.RecordError(errors.New("invalid twilio signature"))
			writeJSON(w, http.StatusUnauthorized, inboundResponse{Success: false, Error: "invalid signature"})
			return
		}
	}

	sms, err := messaging.ParseInboundSMS(r)
	if err != nil {
		h.logger.Error("failed to parse inbound sms webhook", "error", err)
		span.RecordError(err)
		h.metrics.ObserveInbound("none", "bad_request")
		writeJSON(w, http.StatusBadRequest, inboundResponse{Success: false, Error: "malformed webhook payload"})
		return
	}
	if sms.From == "" || strings.TrimSpace(sms.Body) == "" {
		err := errors.New("missing required sms fields")
		h.logger.Error("invalid inbound sms payload", "error", err, "from", sms.From)
		span.RecordError(err)
		h.metrics.ObserveInbound("none", "bad_request")
		writeJSON(w, http.StatusBadRequest, inboundResponse{Success: false, Error: "From and Body are required"})
		return
	}
	span.SetAttributes(
		attribute.String("bridge.sms.from", sms.From),
		attribute.String("bridge.sms.to", sms.To),
	)

	h.logger.Info("received inbound sms",
		"from", phone.DisplayE164(sms.From),
		"to", phone.DisplayE164(sms.To),
		"body_length", len(sms.Body),
	)

	result, err := h.controller.Process(ctx, bridge.InboundMessage{
		From:       sms.From,
		To:         sms.To,
		Body:       sms.Body,
		SenderName: sms.ProfileName,
	})
	if err != nil {
		h.logger.Error("inbound sms processing failed", "error", err, "from", sms.From)
		span.RecordError(err)
		h.metrics.ObserveInbound("none", "error")
		writeJSON(w, http.StatusInternalServerError, inboundResponse{Success: false, Error: "Failed to create support ticket"})
		return
	}

	span.SetAttributes(attribute.String("bridge.action", result.Action))
	h.metrics.ObserveInbound(result.Action, "ok")

	resp := inboundResponse{
		Success:      true,
		Action:       result.Action,
		TicketID:     result.TicketID,
		TicketNumber: result.TicketNumber,
		CommentID:    result.CommentID,
	}
	if result.Action == bridge.ActionCommentAdded {
		// Partial success (comment landed, status patch failed) is surfaced
		// here rather than retried.
		resp.TicketUpdated = &result.StatusUpdated
	}
	writeJSON(w, http.StatusOK, resp)
}

type outboundResponse struct {
	Success    bool   `json:"success,omitempty"`
	Message    string `json:"message,omitempty"`
	MessageSid string `json:"messageSid,omitempty"`
	To         string `json:"to,omitempty"`
	TicketID   string `json:"ticketId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HandleCommentEvent processes POST /webhooks/desk/comment: agent comments
// become outbound SMS, echoes of inbound SMS are skipped.
func (h *WebhookHandler) HandleCommentEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "webhooks.desk.comment")
	defer span.End()
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency("desk_comment", time.Since(start).Seconds())
	}()

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, outboundResponse{Error: "invalid request body"})
		return
	}

	result, err := h.replies.HandleEvent(ctx, raw)
	if err != nil {
		span.RecordError(err)
		if isClientError(err) {
			h.metrics.ObserveOutbound("rejected", false)
			writeJSON(w, http.StatusBadRequest, outboundResponse{Error: clientErrorMessage(err)})
			return
		}
		h.logger.Error("reply dispatch failed", "error", err)
		h.metrics.ObserveOutbound("error", false)
		writeJSON(w, http.StatusInternalServerError, outboundResponse{Error: err.Error()})
		return
	}

	if result.Skipped {
		h.metrics.ObserveOutbound("skipped", true)
		writeJSON(w, http.StatusOK, outboundResponse{Message: "skipped"})
		return
	}

	span.SetAttributes(
		attribute.String("bridge.ticket_id", result.TicketID),
		attribute.String("bridge.message_sid", result.MessageID),
	)
	h.metrics.ObserveOutbound("sent", false)
	writeJSON(w, http.StatusOK, outboundResponse{
		Success:    true,
		MessageSid: result.MessageID,
		To:         result.To,
		TicketID:   result.TicketID,
	})
}

// HandleTest processes POST /test: create a ticket directly from a JSON body,
// bypassing correlation. Useful for verifying backend wiring.
func (h *WebhookHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone   string `json:"phone"`
		Message string `json:"message"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON body"})
		return
	}
	if req.Phone == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "phone and message are required"})
		return
	}

	result, err := h.controller.CreateTicket(r.Context(), bridge.InboundMessage{
		From:       req.Phone,
		Body:       req.Message,
		SenderName: req.Name,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"ticketId":     result.TicketID,
		"ticketNumber": result.TicketNumber,
	})
}

// HealthCheck returns a simple health check response.
func (h *WebhookHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func isClientError(err error) bool {
	return errors.Is(err, bridge.ErrMalformedEvent) ||
		errors.Is(err, bridge.ErrMissingTicketID) ||
		errors.Is(err, bridge.ErrEmptyContent) ||
		errors.Is(err, bridge.ErrNoDestination)
}

func clientErrorMessage(err error) string {
	switch {
	case errors.Is(err, bridge.ErrMissingTicketID):
		return "event missing ticketId"
	case errors.Is(err, bridge.ErrEmptyContent):
		return "comment content empty"
	case errors.Is(err, bridge.ErrNoDestination):
		return "no phone number for this ticket"
	default:
		return "malformed comment event"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
