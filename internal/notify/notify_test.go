package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lohithk/tallysync/internal/domain"
)

func failedRun() domain.SyncRun {
	return domain.SyncRun{
		ID:         uuid.New(),
		StartedAt:  time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 5, 1, 6, 2, 0, 0, time.UTC),
		Status:     domain.RunStatusPartial,
		Outcomes: []domain.TypeOutcome{
			{RecordType: "Ledger", Rows: 10},
			{RecordType: "StockItem", Error: "destination rejected batch"},
		},
		Error: "failed types: StockItem",
	}
}

func TestSummaryListsFailedTypesOnly(t *testing.T) {
	got := Summary(failedRun())
	if !strings.Contains(got, "StockItem: destination rejected batch") {
		t.Fatalf("summary missing failure detail:\n%s", got)
	}
	if strings.Contains(got, "- Ledger") {
		t.Fatalf("summary should not list healthy types:\n%s", got)
	}
	if !strings.Contains(got, "partial") {
		t.Fatalf("summary missing status:\n%s", got)
	}
}

func TestTelegramNotifierPostsMessage(t *testing.T) {
	var path, chatID, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = r.ParseForm()
		chatID = r.FormValue("chat_id")
		text = r.FormValue("text")
	}))
	defer srv.Close()

	n := NewTelegramNotifier("123:abc", "-100200")
	n.baseURL = srv.URL

	if err := n.Notify(context.Background(), failedRun()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path: %s", path)
	}
	if chatID != "-100200" {
		t.Fatalf("unexpected chat id: %s", chatID)
	}
	if !strings.Contains(text, "StockItem") {
		t.Fatalf("message missing failure: %s", text)
	}
}

func TestTelegramNotifierSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("123:abc", "-100200")
	n.baseURL = srv.URL

	if err := n.Notify(context.Background(), failedRun()); err == nil {
		t.Fatalf("expected API error to propagate")
	}
}

func TestTelegramNotifierDisabledWithoutToken(t *testing.T) {
	n := NewTelegramNotifier("", "")
	if err := n.Notify(context.Background(), failedRun()); err != nil {
		t.Fatalf("disabled notifier must be a no-op, got %v", err)
	}
}

func TestEmailNotifierBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	n := NewEmailNotifier("mail.example.com", 587, "sync", "secret", "sync@example.com", []string{"ops@example.com"})
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := n.Notify(context.Background(), failedRun()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotAddr != "mail.example.com:587" {
		t.Fatalf("unexpected addr: %s", gotAddr)
	}
	if gotFrom != "sync@example.com" || len(gotTo) != 1 {
		t.Fatalf("unexpected envelope: %s %v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "Subject: Tally sync partial") {
		t.Fatalf("missing subject: %s", body)
	}
	if !strings.Contains(body, "StockItem") {
		t.Fatalf("missing failure detail: %s", body)
	}
}

func TestEmailNotifierDisabledWithoutHost(t *testing.T) {
	n := NewEmailNotifier("", 0, "", "", "", nil)
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called when disabled")
		return nil
	}
	if err := n.Notify(context.Background(), failedRun()); err != nil {
		t.Fatalf("disabled notifier must be a no-op, got %v", err)
	}
}
