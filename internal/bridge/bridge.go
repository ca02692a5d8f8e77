// Package bridge implements the SMS-ticket correlation and reply-routing
// engine: matching inbound texts to tickets, the reopen/escalate transition,
// and the classifier that keeps SMS-derived comments from echoing back out.
// The bridge is stateless; every decision is recomputed from the ticket
// backend on each request.
package bridge

import (
	"context"

	"github.com/smsdesk/bridge/internal/desk"
)

// Directory is the slice of the ticket backend the bridge consumes.
type Directory interface {
	SearchRecent(ctx context.Context, limit int, sortBy string) ([]desk.Ticket, error)
	GetTicket(ctx context.Context, id string) (*desk.Ticket, error)
	PatchTicket(ctx context.Context, id string, fields map[string]any) error
	ListComments(ctx context.Context, id string) ([]desk.Comment, error)
	AddComment(ctx context.Context, id, content string, isPublic bool) (string, error)
	CreateTicket(ctx context.Context, req desk.CreateTicketRequest) (*desk.CreatedTicket, error)
}

// Messenger sends one SMS. An empty from asks the provider to use its
// default sending identity.
type Messenger interface {
	Send(ctx context.Context, to, body, from string) (string, error)
}

// InboundMessage is one received SMS, constructed per request and discarded
// after the response.
type InboundMessage struct {
	From       string // sender's number
	To         string // the virtual number that received the message
	Body       string
	SenderName string // optional provider profile name
}

// InboundMarker prefixes every comment the bridge writes for an inbound SMS.
// The reply classifier keys on it to break the feedback loop.
const InboundMarker = "📱"
