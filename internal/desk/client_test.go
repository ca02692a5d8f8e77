package desk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(serverURL string) Config {
	return Config{
		BaseURL:      serverURL,
		AccountsURL:  serverURL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RefreshToken: "test-refresh",
		OrgID:        "org-1",
		Department:   "dept-1",
		Timeout:      5 * time.Second,
	}
}

func serveToken(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": "mock-token",
		"expires_in":   3600,
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing base URL", func(c *Config) { c.BaseURL = "" }, true},
		{"missing accounts URL", func(c *Config) { c.AccountsURL = "" }, true},
		{"missing refresh token", func(c *Config) { c.RefreshToken = "" }, true},
		{"missing org", func(c *Config) { c.OrgID = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("https://desk.example.com")
			tt.mutate(&cfg)
			client, err := New(cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if client == nil {
				t.Error("expected client but got nil")
			}
		})
	}
}

func TestSearchRecent(t *testing.T) {
	var tokenCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v2/token" {
			tokenCalls.Add(1)
			serveToken(w)
			return
		}
		if r.URL.Path == "/api/v1/tickets" {
			if got := r.Header.Get("Authorization"); got != "Zoho-oauthtoken mock-token" {
				t.Errorf("unexpected Authorization header %q", got)
			}
			if got := r.Header.Get("orgId"); got != "org-1" {
				t.Errorf("unexpected orgId header %q", got)
			}
			q := r.URL.Query()
			if q.Get("sortBy") != "modifiedTime" || q.Get("limit") != "50" || q.Get("include") != "contacts" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{
						"id":           "t-1",
						"ticketNumber": "101",
						"subject":      "SMS from (+15551234567)",
						"status":       "Open",
						"priority":     "Medium",
						"contact":      map[string]any{"phone": "+15551234567"},
						"modifiedTime": "2026-08-01T10:00:00.000Z",
					},
				},
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	tickets, err := client.SearchRecent(ctx, 50, "modifiedTime")
	if err != nil {
		t.Fatalf("SearchRecent failed: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("expected one ticket, got %d", len(tickets))
	}
	if tickets[0].Contact.Phone != "+15551234567" {
		t.Errorf("expected contact phone, got %q", tickets[0].Contact.Phone)
	}

	// Second call reuses the cached credential.
	if _, err := client.SearchRecent(ctx, 50, "modifiedTime"); err != nil {
		t.Fatalf("second SearchRecent failed: %v", err)
	}
	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("expected a single token refresh, got %d", got)
	}
}

func TestAddCommentAndPatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/oauth/v2/token":
			serveToken(w)
		case r.URL.Path == "/api/v1/tickets/t-1/comments" && r.Method == http.MethodPost:
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["contentType"] != "plainText" || body["isPublic"] != true {
				t.Errorf("unexpected comment body: %v", body)
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "c-9"})
		case r.URL.Path == "/api/v1/tickets/t-1" && r.Method == http.MethodPatch:
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["status"] != "Open" || body["priority"] != "High" {
				t.Errorf("unexpected patch body: %v", body)
			}
			json.NewEncoder(w).Encode(map[string]any{"id": "t-1"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()
	commentID, err := client.AddComment(ctx, "t-1", "hello", true)
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if commentID != "c-9" {
		t.Errorf("expected comment id c-9, got %q", commentID)
	}

	if err := client.PatchTicket(ctx, "t-1", map[string]any{"status": "Open", "priority": "High"}); err != nil {
		t.Fatalf("PatchTicket failed: %v", err)
	}
}

func TestCreateTicketDefaultsDepartment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/oauth/v2/token":
			serveToken(w)
		case r.URL.Path == "/api/v1/tickets" && r.Method == http.MethodPost:
			var req CreateTicketRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Department != "dept-1" {
				t.Errorf("expected department from config, got %q", req.Department)
			}
			if req.Contact.Email == "" {
				t.Error("expected synthesized contact email")
			}
			json.NewEncoder(w).Encode(map[string]any{
				"id":           "t-2",
				"ticketNumber": "102",
				"contactId":    "ct-5",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	created, err := client.CreateTicket(context.Background(), CreateTicketRequest{
		Subject:     "SMS from (+15551234567)",
		Description: "Hello",
		Contact:     Contact{LastName: "SMS Customer +15551234567", Phone: "+15551234567", Email: "15551234567@sms.customer"},
		Priority:    PriorityMedium,
		Status:      StatusOpen,
		Channel:     "Phone",
	})
	if err != nil {
		t.Fatalf("CreateTicket failed: %v", err)
	}
	if created.ID != "t-2" || created.Number != "102" || created.ContactID != "ct-5" {
		t.Errorf("unexpected created ticket: %+v", created)
	}
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/v2/token" {
			serveToken(w)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errorCode":"UNPROCESSABLE_ENTITY"}`))
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.GetTicket(context.Background(), "t-404")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d", apiErr.StatusCode)
	}
}

func TestTokenRefreshFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer server.Close()

	client, err := New(testConfig(server.URL), nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.SearchRecent(context.Background(), 10, ""); err == nil {
		t.Fatal("expected authentication error")
	}
}
