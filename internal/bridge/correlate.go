package bridge

import (
	"context"

	"github.com/smsdesk/bridge/internal/phone"
	"github.com/smsdesk/bridge/pkg/logging"
)

// Target identifies the ticket an inbound message belongs to.
type Target struct {
	TicketID     string
	TicketNumber string
}

// Correlator matches inbound senders to existing tickets. The backend search
// API has no reliable phone filter, so it fetches a bounded recency-sorted
// window and filters client-side; a matching ticket older than the window is
// invisible, which is accepted while conversations stay within the
// active-ticket horizon.
type Correlator struct {
	dir    Directory
	window int
	logger *logging.Logger
}

// NewCorrelator builds a correlator over the given window size (<=0 means 50).
func NewCorrelator(dir Directory, window int, logger *logging.Logger) *Correlator {
	if logger == nil {
		logger = logging.Default()
	}
	if window <= 0 {
		window = 50
	}
	return &Correlator{dir: dir, window: window, logger: logger}
}

// FindTarget returns the most recently modified ticket whose contact phone is
// equivalent to from, or nil when none matches. A directory failure degrades
// to nil so an outage routes the message to ticket creation instead of
// dropping it.
func (c *Correlator) FindTarget(ctx context.Context, from string) *Target {
	tickets, err := c.dir.SearchRecent(ctx, c.window, "modifiedTime")
	if err != nil {
		c.logger.Error("ticket search failed, treating as no match", "error", err, "from", from)
		return nil
	}

	// The window arrives newest-first; the first equivalent contact wins.
	for _, t := range tickets {
		if t.Contact.Phone == "" {
			continue
		}
		if phone.Equivalent(from, t.Contact.Phone) {
			c.logger.Info("correlated inbound sms to ticket",
				"from", from,
				"ticket_id", t.ID,
				"ticket_number", t.Number,
			)
			return &Target{TicketID: t.ID, TicketNumber: t.Number}
		}
	}

	c.logger.Info("no existing ticket for sender", "from", from, "window", c.window)
	return nil
}
