package email

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fourpisky-feeds/pkg/feed"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendParseFailure(t *testing.T) {
	provider := NewMockProvider(testLogger())
	sender := New(provider, testLogger(), []string{"ops@example.org"}, "[TEST][4PiSky] ")

	err := sender.SendParseFailure(context.Background(), "ASASSN webpage", "http://example.org/t.html",
		&feed.ParseError{Feed: "ASASSN webpage", Reason: `header row changed: ["<b>"]`})
	if err != nil {
		t.Fatalf("SendParseFailure() error = %v", err)
	}

	sent := provider.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	if sent[0].Subject != "[TEST][4PiSky] Feed parse failure: ASASSN webpage" {
		t.Errorf("Subject = %q", sent[0].Subject)
	}
	if !strings.Contains(sent[0].HTMLBody, "&lt;b&gt;") {
		t.Error("error text not escaped")
	}
	if strings.Contains(sent[0].HTMLBody, "<b>") {
		t.Error("raw markup leaked into body")
	}
}

func TestSendDeliveryFailures(t *testing.T) {
	provider := NewMockProvider(testLogger())
	sender := New(provider, testLogger(), []string{"ops@example.org"}, "")

	if err := sender.SendDeliveryFailures(context.Background(), "GAIA science alerts", nil); err != nil {
		t.Fatalf("SendDeliveryFailures(nil) error = %v", err)
	}
	if len(provider.Sent()) != 0 {
		t.Fatal("alert sent for an empty failure list")
	}

	failures := []*feed.DeliveryError{
		{IVORN: "ivo://voevent.4pisky.org/GAIA#Gaia16aaa", Err: errors.New("broker down")},
		{IVORN: "ivo://voevent.4pisky.org/GAIA#Gaia16aab", Err: errors.New("broker down")},
	}
	if err := sender.SendDeliveryFailures(context.Background(), "GAIA science alerts", failures); err != nil {
		t.Fatalf("SendDeliveryFailures() error = %v", err)
	}
	body := provider.Sent()[0].HTMLBody
	if !strings.Contains(body, "2 events not delivered") || !strings.Contains(body, "Gaia16aab") {
		t.Errorf("unexpected body:\n%s", body)
	}
}

func TestSenderWithoutRecipients(t *testing.T) {
	provider := NewMockProvider(testLogger())
	sender := New(provider, testLogger(), nil, "")
	if err := sender.SendParseFailure(context.Background(), "x", "http://x", errors.New("boom")); err != nil {
		t.Fatalf("SendParseFailure() error = %v", err)
	}
	if len(provider.Sent()) != 0 {
		t.Error("alert sent without recipients")
	}
}

func TestBuildMIMESanitizesHeaders(t *testing.T) {
	raw := buildMIME(Message{
		To:       []string{"a@example.org", "b@example.org\r\nBcc: evil@example.org"},
		Subject:  "Alert\nX-Injected: yes",
		HTMLBody: "<p>hi</p>",
	})
	if strings.Contains(raw, "\nBcc:") || strings.Contains(raw, "\nX-Injected") {
		t.Errorf("header injection survived:\n%q", raw)
	}
	if !strings.Contains(raw, "To: a@example.org, b@example.orgBcc: evil@example.org\r\n") {
		t.Errorf("unexpected To header:\n%q", raw)
	}
}

func TestBrevoProvider(t *testing.T) {
	var got brevoSendRequest
	status := http.StatusCreated
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("api-key") != "secret" {
			t.Errorf("api-key header = %q", r.Header.Get("api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	b := NewBrevoProvider("secret", "bot@4pisky.org", "4PiSky", testLogger())
	b.endpoint = srv.URL

	msg := Message{To: []string{"a@example.org", "b@example.org"}, Subject: "s", HTMLBody: "<p>b</p>"}
	if err := b.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(got.To) != 2 || got.Sender.Email != "bot@4pisky.org" || got.HTML != "<p>b</p>" {
		t.Errorf("unexpected request %+v", got)
	}

	status = http.StatusBadRequest
	calls = 0
	if err := b.Send(context.Background(), msg); err == nil {
		t.Error("Send() succeeded on HTTP 400")
	}
	if calls != 1 {
		t.Errorf("HTTP 400 was retried: %d calls", calls)
	}
}
