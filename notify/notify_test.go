package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/hazyhaar/mntr/monitor"
)

func testPage() *monitor.Page {
	return &monitor.Page{ID: "p1", OwnerID: "u1", Name: "Docs", URL: "https://example.com/docs"}
}

func testResult() *monitor.CheckResult {
	return &monitor.CheckResult{
		PageID:  "p1",
		Status:  monitor.StatusCreated,
		Changed: true,
		Diff:    "--- old\n+++ new\n@@ -1 +1 @@\n-a\n+b\n",
	}
}

type fakeSender struct {
	calls int
	err   error
}

func (f *fakeSender) Send(context.Context, *monitor.NotificationSettings, *monitor.Page, *monitor.CheckResult) error {
	f.calls++
	return f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherRoutesByChannel(t *testing.T) {
	email := &fakeSender{}
	slack := &fakeSender{}
	lookup := func(_ context.Context, userID string) (*monitor.NotificationSettings, error) {
		return &monitor.NotificationSettings{UserID: userID, Channel: monitor.ChannelSlack}, nil
	}
	d := NewDispatcher(lookup,
		WithLogger(quietLogger()),
		WithSender(monitor.ChannelEmail, email),
		WithSender(monitor.ChannelSlack, slack),
	)

	if err := d.Notify(context.Background(), testPage(), testResult()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if slack.calls != 1 || email.calls != 0 {
		t.Errorf("calls: slack=%d email=%d", slack.calls, email.calls)
	}
}

func TestDispatcherNoSettingsIsNoOp(t *testing.T) {
	sender := &fakeSender{}
	lookup := func(context.Context, string) (*monitor.NotificationSettings, error) { return nil, nil }
	d := NewDispatcher(lookup, WithLogger(quietLogger()), WithSender(monitor.ChannelEmail, sender))

	if err := d.Notify(context.Background(), testPage(), testResult()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if sender.calls != 0 {
		t.Errorf("sender called %d times", sender.calls)
	}
}

func TestDispatcherUnknownChannelDropped(t *testing.T) {
	lookup := func(context.Context, string) (*monitor.NotificationSettings, error) {
		return &monitor.NotificationSettings{Channel: monitor.ChannelTelegram}, nil
	}
	d := NewDispatcher(lookup, WithLogger(quietLogger()))
	if err := d.Notify(context.Background(), testPage(), testResult()); err != nil {
		t.Fatalf("unregistered channel must not error: %v", err)
	}
}

func TestDispatcherWrapsSenderError(t *testing.T) {
	boom := errors.New("boom")
	lookup := func(context.Context, string) (*monitor.NotificationSettings, error) {
		return &monitor.NotificationSettings{Channel: monitor.ChannelEmail}, nil
	}
	d := NewDispatcher(lookup, WithLogger(quietLogger()),
		WithSender(monitor.ChannelEmail, &fakeSender{err: boom}))

	err := d.Notify(context.Background(), testPage(), testResult())
	if !errors.Is(err, boom) {
		t.Errorf("got %v", err)
	}
}

func TestEmailSenderMessage(t *testing.T) {
	var gotTo []string
	var gotMsg []byte
	e := NewEmailSender(EmailConfig{Addr: "mail.example.com:587", From: "mntr@example.com"})
	e.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotTo, gotMsg = to, msg
		return nil
	}

	settings := &monitor.NotificationSettings{EmailAddress: "dev@example.com"}
	if err := e.Send(context.Background(), settings, testPage(), testResult()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "dev@example.com" {
		t.Errorf("to: %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: Change detected: Docs") {
		t.Errorf("subject missing: %q", msg)
	}
	if !strings.Contains(msg, "https://example.com/docs") || !strings.Contains(msg, "+b") {
		t.Errorf("body missing parts: %q", msg)
	}
}

func TestEmailSenderRequiresAddress(t *testing.T) {
	e := NewEmailSender(EmailConfig{Addr: "mail:25", From: "x@y"})
	err := e.Send(context.Background(), &monitor.NotificationSettings{}, testPage(), testResult())
	if err == nil {
		t.Fatal("expected error without address")
	}
}

func TestSlackSenderPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewSlackSender()
	settings := &monitor.NotificationSettings{SlackWebhookURL: srv.URL}
	if err := s.Send(context.Background(), settings, testPage(), testResult()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["text"] != "Change detected: Docs" {
		t.Errorf("text: %v", got["text"])
	}
	blocks, ok := got["blocks"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("blocks: %v", got["blocks"])
	}
}

func TestSlackSenderFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no_service", http.StatusGone)
	}))
	defer srv.Close()

	s := NewSlackSender()
	err := s.Send(context.Background(), &monitor.NotificationSettings{SlackWebhookURL: srv.URL}, testPage(), testResult())
	if err == nil || !strings.Contains(err.Error(), "410") {
		t.Errorf("got %v", err)
	}
}

func TestTelegramSenderRequest(t *testing.T) {
	var gotPath string
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramSender(TelegramConfig{BotToken: "123:abc", APIBase: srv.URL})
	settings := &monitor.NotificationSettings{TelegramChatID: "42"}
	if err := tg.Send(context.Background(), settings, testPage(), testResult()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("path: %q", gotPath)
	}
	if got["chat_id"] != "42" || !strings.Contains(got["text"], "Docs") {
		t.Errorf("payload: %v", got)
	}
}
