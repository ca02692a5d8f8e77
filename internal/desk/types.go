package desk

import "time"

// Ticket statuses and priorities the bridge cares about. The backend knows
// more states; the bridge only ever forces these.
const (
	StatusOpen     = "Open"
	StatusClosed   = "Closed"
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

// Ticket is the backend's ticket record. The bridge never caches tickets
// across requests; the backend copy is always the source of truth.
type Ticket struct {
	ID           string    `json:"id"`
	Number       string    `json:"ticketNumber"`
	Subject      string    `json:"subject"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	Contact      Contact   `json:"contact"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

// Contact is the ticket's associated contact record.
type Contact struct {
	LastName string `json:"lastName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

// Comment is a ticket comment. Append-only from the bridge's perspective.
type Comment struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	CommentedTime time.Time `json:"commentedTime"`
	IsPublic      bool      `json:"isPublic"`
}

// CreateTicketRequest carries the fields for a new ticket.
type CreateTicketRequest struct {
	Subject     string  `json:"subject"`
	Description string  `json:"description"`
	Department  string  `json:"departmentId,omitempty"`
	Contact     Contact `json:"contact"`
	Priority    string  `json:"priority"`
	Status      string  `json:"status"`
	Channel     string  `json:"channel,omitempty"`
}

// CreatedTicket is the backend's answer to a successful creation.
type CreatedTicket struct {
	ID        string `json:"id"`
	Number    string `json:"ticketNumber"`
	ContactID string `json:"contactId"`
}
