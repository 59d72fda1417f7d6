package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/wneessen/go-mail"

	"github.com/kjstillabower/weather-monitor/internal/observability"
)

var osloMessage = Message{
	Title:     "Weather: Oslo",
	Body:      "Oslo: 5.0°C, cloudy",
	Severity:  SeverityInfo,
	Latitude:  59.9139,
	Longitude: 10.7522,
}

func TestSlackSink_Send(t *testing.T) {
	var payload struct {
		Text   string                   `json:"text"`
		Blocks []map[string]interface{} `json:"blocks"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := NewSlackSink(server.URL, server.Client())
	if err != nil {
		t.Fatalf("NewSlackSink() error = %v", err)
	}
	if err := s.Send(context.Background(), osloMessage); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if payload.Text != "Weather: Oslo" {
		t.Errorf("text = %q", payload.Text)
	}
	if len(payload.Blocks) != 3 {
		t.Fatalf("len(blocks) = %d, want 3 (section, actions, context)", len(payload.Blocks))
	}
	wantTypes := []string{"section", "actions", "context"}
	for i, b := range payload.Blocks {
		if b["type"] != wantTypes[i] {
			t.Errorf("blocks[%d].type = %v, want %s", i, b["type"], wantTypes[i])
		}
	}
	section, _ := json.Marshal(payload.Blocks[0])
	if !strings.Contains(string(section), "Oslo: 5.0°C, cloudy") {
		t.Errorf("section = %s", section)
	}
	actions, _ := json.Marshal(payload.Blocks[1])
	if !strings.Contains(string(actions), "daglig-tabell/59.9139,10.7522") {
		t.Errorf("actions = %s", actions)
	}
}

func TestSlackSink_NoLinkWithoutCoordinates(t *testing.T) {
	msg := slackPayload(Message{Title: "Weather warnings for Norway", Body: "Gale (severe)", Severity: SeverityDanger})
	if n := len(msg.Blocks.BlockSet); n != 2 {
		t.Errorf("len(blocks) = %d, want 2 (no button)", n)
	}
}

func TestSlackSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s, _ := NewSlackSink(server.URL, nil)
	if err := s.Send(context.Background(), osloMessage); err == nil {
		t.Error("Send() expected error on HTTP 500")
	}
}

func TestNewSlackSink_RequiresURL(t *testing.T) {
	if _, err := NewSlackSink("", nil); err == nil {
		t.Error("NewSlackSink(\"\") expected error")
	}
}

type fakeMailSender struct {
	err  error
	sent []*mail.Msg
}

func (f *fakeMailSender) DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error {
	f.sent = append(f.sent, messages...)
	return f.err
}

func newTestEmailSink(t *testing.T, sender *fakeMailSender) *EmailSink {
	t.Helper()
	s, err := NewEmailSink(EmailConfig{
		From: "monitor@example.com",
		To:   []string{"ops@example.com", "oncall@example.com"},
		Host: "smtp.example.com",
		Port: 587,
	})
	if err != nil {
		t.Fatalf("NewEmailSink() error = %v", err)
	}
	s.newSender = func() (mailSender, error) { return sender, nil }
	return s
}

func TestEmailSink_Send(t *testing.T) {
	sender := &fakeMailSender{}
	s := newTestEmailSink(t, sender)

	if err := s.Send(context.Background(), osloMessage); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	m := sender.sent[0]
	if got := m.GetGenHeader(mail.HeaderSubject); len(got) != 1 || got[0] != "Weather: Oslo" {
		t.Errorf("Subject = %v", got)
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	raw := buf.String()
	for _, want := range []string{"ops@example.com", "oncall@example.com", "Oslo: 5.0", "cloudy", "text/plain"} {
		if !strings.Contains(raw, want) {
			t.Errorf("mail does not contain %q:\n%s", want, raw)
		}
	}
}

func TestEmailSink_DangerSubject(t *testing.T) {
	sender := &fakeMailSender{}
	s := newTestEmailSink(t, sender)

	_ = s.Send(context.Background(), Message{Title: "Weather warnings for Norway", Body: "x", Severity: SeverityDanger})
	if got := sender.sent[0].GetGenHeader(mail.HeaderSubject); len(got) != 1 || got[0] != "[WARNING] Weather warnings for Norway" {
		t.Errorf("Subject = %v", got)
	}
}

func TestEmailSink_SendError(t *testing.T) {
	sender := &fakeMailSender{err: errors.New("connection refused")}
	s := newTestEmailSink(t, sender)

	if err := s.Send(context.Background(), osloMessage); err == nil || !strings.Contains(err.Error(), "smtp send") {
		t.Errorf("Send() error = %v, want smtp send error", err)
	}
}

func TestNewEmailSink_Validation(t *testing.T) {
	if _, err := NewEmailSink(EmailConfig{To: []string{"a@example.com"}}); err == nil {
		t.Error("expected error for empty host")
	}
	if _, err := NewEmailSink(EmailConfig{Host: "smtp.example.com"}); err == nil {
		t.Error("expected error for no recipients")
	}
}

func TestEmailSink_InvalidSender(t *testing.T) {
	sender := &fakeMailSender{}
	s := newTestEmailSink(t, sender)
	s.cfg.From = "not an address"

	if err := s.Send(context.Background(), osloMessage); err == nil {
		t.Error("Send() expected error for invalid sender")
	}
	if len(sender.sent) != 0 {
		t.Error("nothing should be sent with an invalid sender")
	}
}

type fakeWriter struct {
	msgs   []kafkago.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink_Send(t *testing.T) {
	w := &fakeWriter{}
	fixed := time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)
	s := &KafkaSink{writer: w, now: func() time.Time { return fixed }}

	ctx := observability.WithRunID(context.Background(), "run-42")
	if err := s.Send(ctx, osloMessage); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "Weather: Oslo" {
		t.Errorf("Key = %q", m.Key)
	}
	var ev map[string]interface{}
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if ev["runId"] != "run-42" || ev["title"] != "Weather: Oslo" || ev["severity"] != "info" {
		t.Errorf("event = %v", ev)
	}
	if !strings.Contains(ev["link"].(string), "59.9139,10.7522") {
		t.Errorf("link = %v", ev["link"])
	}
	headers := map[string]string{}
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["run_id"] != "run-42" || headers["sent_at"] != "2026-10-17T06:00:00Z" {
		t.Errorf("headers = %v", headers)
	}

	n := NewNotifier(nil, 0, s)
	if err := n.Close(); err != nil || !w.closed {
		t.Errorf("Close() err = %v, closed = %v", err, w.closed)
	}
}
