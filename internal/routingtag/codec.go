// Package routingtag embeds and recovers the receiving (virtual) number
// inside ticket text. The annotation rides along in descriptions and comments
// so an agent reply can be sent from the same number the customer texted.
// The wire format is the single place that knows how the tag looks; callers
// only see Encode/Decode and the extraction helpers.
package routingtag

import (
	"regexp"
	"sort"
	"strings"

	"github.com/smsdesk/bridge/internal/desk"
)

// tagRe matches the hidden annotation, e.g. [RECEIVING_NUMBER:+18005551234].
var tagRe = regexp.MustCompile(`\[RECEIVING_NUMBER:(\+?[0-9]+)\]`)

// phoneTokenRe finds a phone-shaped token in free text: at least seven
// characters of digits and common separators between two digits.
var phoneTokenRe = regexp.MustCompile(`\+?[0-9][0-9\-\s().]{5,}[0-9]`)

// Encode produces the tag text for a routing number.
func Encode(routingNumber string) string {
	return "[RECEIVING_NUMBER:" + routingNumber + "]"
}

// Decode returns the first routing number tagged inside text.
func Decode(text string) (string, bool) {
	match := tagRe.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// ExtractRoutingNumber recovers the routing number for a ticket. The ticket
// description is authoritative; failing that, comments are scanned newest
// first and the first tagged one wins. A false result means no tag exists
// anywhere and the caller must fall back to a default sending identity.
func ExtractRoutingNumber(ticket *desk.Ticket, comments []desk.Comment) (string, bool) {
	if ticket != nil {
		if number, ok := Decode(ticket.Description); ok {
			return number, true
		}
	}
	ordered := make([]desk.Comment, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CommentedTime.After(ordered[j].CommentedTime)
	})
	for _, c := range ordered {
		if number, ok := Decode(c.Content); ok {
			return number, true
		}
	}
	return "", false
}

// ExtractContactNumber resolves the counterparty's phone number: the contact
// record first, then a phone-shaped token in the subject, then one in the
// description. Each stage runs only when the prior one yielded nothing. A
// false result means no reply is possible.
func ExtractContactNumber(ticket *desk.Ticket) (string, bool) {
	if ticket == nil {
		return "", false
	}
	extractors := []func() string{
		func() string { return strings.TrimSpace(ticket.Contact.Phone) },
		func() string { return phoneToken(ticket.Subject) },
		// The description may carry a routing tag; its digits must never be
		// mistaken for the counterparty's number.
		func() string { return phoneToken(tagRe.ReplaceAllString(ticket.Description, " ")) },
	}
	for _, extract := range extractors {
		if number := extract(); number != "" {
			return number, true
		}
	}
	return "", false
}

func phoneToken(text string) string {
	return strings.TrimSpace(phoneTokenRe.FindString(text))
}
