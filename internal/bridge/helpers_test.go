package bridge

import (
	"context"
	"errors"

	"github.com/smsdesk/bridge/internal/desk"
)

// fakeDirectory is a scriptable Directory for tests.
type fakeDirectory struct {
	tickets  []desk.Ticket
	ticket   *desk.Ticket
	comments []desk.Comment

	searchErr  error
	getErr     error
	patchErr   error
	listErr    error
	commentErr error
	createErr  error

	addCommentCalls []string // content per call
	patchedFields   []map[string]any
	createdRequests []desk.CreateTicketRequest

	created *desk.CreatedTicket
}

func (f *fakeDirectory) SearchRecent(ctx context.Context, limit int, sortBy string) ([]desk.Ticket, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.tickets, nil
}

func (f *fakeDirectory) GetTicket(ctx context.Context, id string) (*desk.Ticket, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.ticket == nil {
		return nil, errors.New("fake: no ticket configured")
	}
	return f.ticket, nil
}

func (f *fakeDirectory) PatchTicket(ctx context.Context, id string, fields map[string]any) error {
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patchedFields = append(f.patchedFields, fields)
	return nil
}

func (f *fakeDirectory) ListComments(ctx context.Context, id string) ([]desk.Comment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.comments, nil
}

func (f *fakeDirectory) AddComment(ctx context.Context, id, content string, isPublic bool) (string, error) {
	if f.commentErr != nil {
		return "", f.commentErr
	}
	f.addCommentCalls = append(f.addCommentCalls, content)
	return "c-1", nil
}

func (f *fakeDirectory) CreateTicket(ctx context.Context, req desk.CreateTicketRequest) (*desk.CreatedTicket, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdRequests = append(f.createdRequests, req)
	if f.created != nil {
		return f.created, nil
	}
	return &desk.CreatedTicket{ID: "t-new", Number: "200", ContactID: "ct-1"}, nil
}

// fakeMessenger records dispatches.
type fakeMessenger struct {
	sendErr error
	calls   []sentSMS
}

type sentSMS struct {
	to, body, from string
}

func (f *fakeMessenger) Send(ctx context.Context, to, body, from string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.calls = append(f.calls, sentSMS{to: to, body: body, from: from})
	return "SM123", nil
}
