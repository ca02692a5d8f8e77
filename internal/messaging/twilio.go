package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ValidateTwilioSignature validates that a request came from Twilio
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	if err := r.ParseForm(); err != nil {
		return false
	}

	payload := buildSignaturePayload(webhookURL, r.PostForm)
	expectedSignature := computeSignature(payload, authToken)

	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// buildSignaturePayload creates the payload string for signature verification:
// the webhook URL followed by every POST parameter, key-sorted.
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature Twilio uses.
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// InboundSMS is the parsed inbound message webhook.
type InboundSMS struct {
	MessageSid  string `json:"MessageSid"`
	From        string `json:"From"`
	To          string `json:"To"`
	Body        string `json:"Body"`
	ProfileName string `json:"ProfileName"`
}

// ParseInboundSMS reads an inbound webhook in either of the provider's
// delivery formats: form-encoded (Twilio's default) or a JSON object with the
// same field names.
func ParseInboundSMS(r *http.Request) (*InboundSMS, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var sms InboundSMS
		if err := json.NewDecoder(r.Body).Decode(&sms); err != nil {
			return nil, fmt.Errorf("messaging: failed to parse JSON webhook: %w", err)
		}
		return &sms, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse form: %w", err)
	}
	return &InboundSMS{
		MessageSid:  r.FormValue("MessageSid"),
		From:        r.FormValue("From"),
		To:          r.FormValue("To"),
		Body:        r.FormValue("Body"),
		ProfileName: r.FormValue("ProfileName"),
	}, nil
}
