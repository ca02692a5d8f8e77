package bridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smsdesk/bridge/internal/desk"
	"github.com/smsdesk/bridge/internal/phone"
	"github.com/smsdesk/bridge/internal/routingtag"
	"github.com/smsdesk/bridge/pkg/logging"
)

// Actions reported by the inbound webhook response.
const (
	ActionCommentAdded     = "comment_added"
	ActionNewTicketCreated = "new_ticket_created"
)

// smsReplyPrefix marks a ticket subject as having unread SMS activity.
const smsReplyPrefix = InboundMarker + " SMS REPLY: "

// InboundResult is the definitive outcome of one inbound message.
type InboundResult struct {
	Action       string
	TicketID     string
	TicketNumber string
	CommentID    string
	// StatusUpdated is false on partial success: the comment landed but the
	// reopen/escalate patch failed. Surfaced, never retried.
	StatusUpdated bool
}

// Controller applies the inbound-message state transition: append the text to
// the matched ticket and force it Open/High, or create a fresh ticket tagged
// with the routing number.
type Controller struct {
	dir    Directory
	corr   *Correlator
	logger *logging.Logger
	now    func() time.Time
}

// NewController wires the controller to the directory and correlator.
func NewController(dir Directory, corr *Correlator, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{dir: dir, corr: corr, logger: logger, now: time.Now}
}

// Process handles one inbound message end to end. It always reaches a
// definitive outcome: comment on a matched ticket, or a new ticket; only a
// failed creation returns an error.
func (c *Controller) Process(ctx context.Context, msg InboundMessage) (*InboundResult, error) {
	if target := c.corr.FindTarget(ctx, msg.From); target != nil {
		result, err := c.appendToTicket(ctx, target, msg)
		if err == nil {
			return result, nil
		}
		// The message must never be dropped: a failed append falls back to
		// opening a fresh ticket.
		c.logger.Warn("failed to add comment, creating new ticket instead",
			"error", err,
			"ticket_id", target.TicketID,
		)
	}
	return c.CreateTicket(ctx, msg)
}

// appendToTicket records the message as a comment, then forces the ticket
// back to Open/High. Reapplying the transition to an already-Open/High ticket
// changes nothing observable.
func (c *Controller) appendToTicket(ctx context.Context, target *Target, msg InboundMessage) (*InboundResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s NEW SMS from %s:\n\n%s\n\n", InboundMarker, msg.From, msg.Body)
	if routing := phone.NormalizeE164(msg.To); routing != "" {
		fmt.Fprintf(&b, "%s\n", routingtag.Encode(routing))
	}
	fmt.Fprintf(&b, "Timestamp: %s", c.now().Format(time.RFC3339))
	content := b.String()

	commentID, err := c.dir.AddComment(ctx, target.TicketID, content, true)
	if err != nil {
		return nil, fmt.Errorf("bridge: comment append failed: %w", err)
	}

	fields := map[string]any{
		"status":   desk.StatusOpen,
		"priority": desk.PriorityHigh,
	}
	if ticket, err := c.dir.GetTicket(ctx, target.TicketID); err == nil {
		if ticket.Subject != "" && !strings.HasPrefix(ticket.Subject, smsReplyPrefix) {
			fields["subject"] = smsReplyPrefix + ticket.Subject
		}
	}

	result := &InboundResult{
		Action:        ActionCommentAdded,
		TicketID:      target.TicketID,
		TicketNumber:  target.TicketNumber,
		CommentID:     commentID,
		StatusUpdated: true,
	}
	if err := c.dir.PatchTicket(ctx, target.TicketID, fields); err != nil {
		// Partial success: the message is recorded either way.
		c.logger.Warn("comment added but ticket status update failed",
			"error", err,
			"ticket_id", target.TicketID,
		)
		result.StatusUpdated = false
	} else {
		c.logger.Info("reopened and prioritized ticket",
			"ticket_id", target.TicketID,
			"status", desk.StatusOpen,
			"priority", desk.PriorityHigh,
		)
	}
	return result, nil
}

// CreateTicket opens a new Medium/Open ticket for an uncorrelated message,
// embedding the routing tag in the description so later replies know which
// number to answer from. Failure here is terminal for the request.
func (c *Controller) CreateTicket(ctx context.Context, msg InboundMessage) (*InboundResult, error) {
	subject := fmt.Sprintf("SMS from (%s)", msg.From)
	contactName := fmt.Sprintf("SMS Customer %s", msg.From)
	if msg.SenderName != "" {
		subject = fmt.Sprintf("SMS from %s (%s)", msg.SenderName, msg.From)
		contactName = msg.SenderName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SMS received from %s:\n\n%s\n\n", msg.From, msg.Body)
	if routing := phone.NormalizeE164(msg.To); routing != "" {
		fmt.Fprintf(&b, "%s\n", routingtag.Encode(routing))
	}
	fmt.Fprintf(&b, "Timestamp: %s", c.now().Format(time.RFC3339))
	description := b.String()

	created, err := c.dir.CreateTicket(ctx, desk.CreateTicketRequest{
		Subject:     subject,
		Description: description,
		Contact: desk.Contact{
			LastName: contactName,
			Phone:    msg.From,
			// The backend requires an email to create a contact.
			Email: phone.Canonicalize(msg.From) + "@sms.customer",
		},
		Priority: desk.PriorityMedium,
		Status:   desk.StatusOpen,
		Channel:  "Phone",
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: ticket creation failed: %w", err)
	}

	c.logger.Info("created ticket from sms",
		"ticket_id", created.ID,
		"ticket_number", created.Number,
		"from", msg.From,
	)
	return &InboundResult{
		Action:        ActionNewTicketCreated,
		TicketID:      created.ID,
		TicketNumber:  created.Number,
		StatusUpdated: true,
	}, nil
}
