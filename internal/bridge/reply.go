package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/smsdesk/bridge/internal/desk"
	"github.com/smsdesk/bridge/internal/routingtag"
	"github.com/smsdesk/bridge/pkg/logging"
)

// Client errors: the event itself is unusable and no SMS must be attempted.
var (
	ErrMalformedEvent  = errors.New("bridge: malformed comment event")
	ErrMissingTicketID = errors.New("bridge: event missing ticketId")
	ErrEmptyContent    = errors.New("bridge: comment content empty")
	ErrNoDestination   = errors.New("bridge: ticket has no phone number")
)

var markupTagRe = regexp.MustCompile(`(?s)<[^>]+>`)

// CommentEvent is the unwrapped comment notification from the ticket backend.
type CommentEvent struct {
	TicketID string
	Content  string
}

type commentEnvelope struct {
	Payload struct {
		TicketID string `json:"ticketId"`
		Content  string `json:"content"`
	} `json:"payload"`
}

// ParseCommentEvent accepts both delivery shapes the backend uses: a single
// event object or a one-element list wrapping it.
func ParseCommentEvent(raw []byte) (*CommentEvent, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, ErrMalformedEvent
	}

	var envelope commentEnvelope
	if strings.HasPrefix(trimmed, "[") {
		var list []commentEnvelope
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return nil, ErrMalformedEvent
		}
		envelope = list[0]
	} else if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, ErrMalformedEvent
	}

	return &CommentEvent{
		TicketID: strings.TrimSpace(envelope.Payload.TicketID),
		Content:  envelope.Payload.Content,
	}, nil
}

// StripMarkup reduces comment HTML to plain text: tags removed, entities
// decoded, edges trimmed.
func StripMarkup(content string) string {
	clean := markupTagRe.ReplaceAllString(content, " ")
	clean = html.UnescapeString(clean)
	return strings.TrimSpace(clean)
}

// ReplyResult is the outcome of one comment event.
type ReplyResult struct {
	Skipped   bool // the comment was an echo of an inbound SMS
	TicketID  string
	To        string
	From      string
	MessageID string
}

// ReplyRouter turns agent comments into outbound SMS. Comments that are
// recorded copies of inbound messages are classified as echoes and skipped.
type ReplyRouter struct {
	dir         Directory
	sender      Messenger
	defaultFrom string
	logger      *logging.Logger
}

// NewReplyRouter builds a router; defaultFrom is the shared sending identity
// used when a ticket carries no routing tag.
func NewReplyRouter(dir Directory, sender Messenger, defaultFrom string, logger *logging.Logger) *ReplyRouter {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReplyRouter{dir: dir, sender: sender, defaultFrom: defaultFrom, logger: logger}
}

// HandleEvent classifies and, unless skipped, dispatches one comment event.
// Client errors (see the sentinels above) mean nothing was sent and nothing
// should be; any other error is a backend or provider failure.
func (r *ReplyRouter) HandleEvent(ctx context.Context, raw []byte) (*ReplyResult, error) {
	event, err := ParseCommentEvent(raw)
	if err != nil {
		return nil, err
	}

	plain := StripMarkup(event.Content)

	// Echo guard: the bridge's own inbound comments must never go back out,
	// whatever else the event looks like.
	if strings.HasPrefix(plain, InboundMarker) {
		r.logger.Info("skipping echoed inbound comment", "ticket_id", event.TicketID)
		return &ReplyResult{Skipped: true, TicketID: event.TicketID}, nil
	}

	if event.TicketID == "" {
		return nil, ErrMissingTicketID
	}
	if plain == "" {
		return nil, ErrEmptyContent
	}

	ticket, err := r.dir.GetTicket(ctx, event.TicketID)
	if err != nil {
		return nil, fmt.Errorf("bridge: ticket lookup failed: %w", err)
	}

	to, ok := routingtag.ExtractContactNumber(ticket)
	if !ok {
		return nil, ErrNoDestination
	}

	from := r.resolveRoutingNumber(ctx, ticket, event.TicketID)

	messageID, err := r.sender.Send(ctx, to, plain, from)
	if err != nil {
		return nil, fmt.Errorf("bridge: sms dispatch failed: %w", err)
	}

	r.logger.Info("agent reply dispatched",
		"ticket_id", event.TicketID,
		"to", to,
		"from", from,
		"message_id", messageID,
	)
	return &ReplyResult{
		TicketID:  event.TicketID,
		To:        to,
		From:      from,
		MessageID: messageID,
	}, nil
}

// resolveRoutingNumber recovers the number to reply from. A missing tag or a
// failed comment scan degrades to the shared default identity rather than
// blocking the reply.
func (r *ReplyRouter) resolveRoutingNumber(ctx context.Context, ticket *desk.Ticket, ticketID string) string {
	// Tickets created by the bridge carry the tag in the description; the
	// comment scan is only needed for tickets that predate the bridge.
	if from, ok := routingtag.ExtractRoutingNumber(ticket, nil); ok {
		return from
	}
	comments, err := r.dir.ListComments(ctx, ticketID)
	if err != nil {
		r.logger.Warn("comment scan failed while resolving routing number", "error", err, "ticket_id", ticketID)
		comments = nil
	}
	if from, ok := routingtag.ExtractRoutingNumber(ticket, comments); ok {
		return from
	}
	r.logger.Warn("no routing tag on ticket, using default sending identity",
		"ticket_id", ticketID,
		"default_from", r.defaultFrom,
	)
	return r.defaultFrom
}
