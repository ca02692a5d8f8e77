package routingtag

import (
	"testing"
	"time"

	"github.com/smsdesk/bridge/internal/desk"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	numbers := []string{"+18005551234", "18005551234", "+445551234567", "911"}
	for _, n := range numbers {
		decoded, ok := Decode(Encode(n))
		if !ok {
			t.Fatalf("Decode(Encode(%q)) found no tag", n)
		}
		if decoded != n {
			t.Errorf("round trip changed %q to %q", n, decoded)
		}
	}
}

func TestDecodeInsideText(t *testing.T) {
	text := "SMS received from +15551234567:\n\nHello\n\n[RECEIVING_NUMBER:+18005551234]\nTimestamp: 2026-08-01T10:00:00Z"
	number, ok := Decode(text)
	if !ok {
		t.Fatal("expected tag in text")
	}
	if number != "+18005551234" {
		t.Errorf("decoded %q", number)
	}

	if _, ok := Decode("no tags here, just +15551234567"); ok {
		t.Error("expected no tag in plain text")
	}
}

func TestExtractRoutingNumberPrefersDescription(t *testing.T) {
	ticket := &desk.Ticket{Description: "body [RECEIVING_NUMBER:+18005551234]"}
	comments := []desk.Comment{
		{Content: "[RECEIVING_NUMBER:+18009999999]", CommentedTime: time.Now()},
	}
	number, ok := ExtractRoutingNumber(ticket, comments)
	if !ok || number != "+18005551234" {
		t.Errorf("expected description tag to win, got %q (ok=%v)", number, ok)
	}
}

func TestExtractRoutingNumberScansNewestCommentFirst(t *testing.T) {
	ticket := &desk.Ticket{Description: "no tag"}
	old := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	comments := []desk.Comment{
		{Content: "[RECEIVING_NUMBER:+18001111111]", CommentedTime: old},
		{Content: "untagged agent reply", CommentedTime: old.Add(2 * time.Hour)},
		{Content: "[RECEIVING_NUMBER:+18002222222]", CommentedTime: old.Add(time.Hour)},
	}
	number, ok := ExtractRoutingNumber(ticket, comments)
	if !ok || number != "+18002222222" {
		t.Errorf("expected newest tagged comment, got %q (ok=%v)", number, ok)
	}
}

func TestExtractRoutingNumberMissing(t *testing.T) {
	if _, ok := ExtractRoutingNumber(&desk.Ticket{Description: "plain"}, nil); ok {
		t.Error("expected no routing number")
	}
	if _, ok := ExtractRoutingNumber(nil, nil); ok {
		t.Error("expected no routing number for nil ticket")
	}
}

func TestExtractContactNumberChain(t *testing.T) {
	tests := []struct {
		name   string
		ticket *desk.Ticket
		want   string
		found  bool
	}{
		{
			name:   "contact field wins",
			ticket: &desk.Ticket{Contact: desk.Contact{Phone: "+15551234567"}, Subject: "SMS from (+15559999999)"},
			want:   "+15551234567",
			found:  true,
		},
		{
			name:   "subject token",
			ticket: &desk.Ticket{Subject: "SMS from John (+15551234567)"},
			want:   "+15551234567",
			found:  true,
		},
		{
			name:   "description token",
			ticket: &desk.Ticket{Description: "caller at 555-123-4567 asked for help"},
			want:   "555-123-4567",
			found:  true,
		},
		{
			name:   "routing tag digits are not a contact",
			ticket: &desk.Ticket{Description: "Hello\n\n[RECEIVING_NUMBER:+18005551234]"},
			found:  false,
		},
		{
			name:   "nothing anywhere",
			ticket: &desk.Ticket{Subject: "General question"},
			found:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractContactNumber(tt.ticket)
			if ok != tt.found {
				t.Fatalf("found=%v, want %v", ok, tt.found)
			}
			if ok && got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
