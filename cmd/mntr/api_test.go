package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hazyhaar/mntr/dbopen"
	"github.com/hazyhaar/mntr/monitor"
	_ "modernc.org/sqlite"
)

type apiFixture struct {
	handler http.Handler
	content *string
	mu      sync.Mutex
	backend *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := "<h1>v1</h1>"
	fx := &apiFixture{content: &body}
	fx.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fx.mu.Lock()
		defer fx.mu.Unlock()
		w.Write([]byte(*fx.content))
	}))
	t.Cleanup(fx.backend.Close)

	db := dbopen.OpenMemory(t)
	svc, err := monitor.New(db, nil, slog.Default(),
		monitor.WithURLValidator(func(string) error { return nil }))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	fx.handler = newRouter(svc)
	return fx
}

func (fx *apiFixture) setContent(s string) {
	fx.mu.Lock()
	*fx.content = s
	fx.mu.Unlock()
}

func (fx *apiFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func (fx *apiFixture) createPage(t *testing.T) string {
	t.Helper()
	rec, got := fx.do(t, "POST", "/api/pages", map[string]any{
		"owner_id": "u1", "name": "Docs", "url": fx.backend.URL,
	})
	if rec.Code != 201 {
		t.Fatalf("create page: %d %s", rec.Code, rec.Body)
	}
	return got["id"].(string)
}

func TestHealthz(t *testing.T) {
	fx := newAPIFixture(t)
	rec, got := fx.do(t, "GET", "/healthz", nil)
	if rec.Code != 200 || got["status"] != "ok" {
		t.Errorf("healthz: %d %v", rec.Code, got)
	}
}

func TestPageCRUD(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createPage(t)

	rec, got := fx.do(t, "GET", "/api/pages/"+id, nil)
	if rec.Code != 200 || got["name"] != "Docs" {
		t.Errorf("get: %d %v", rec.Code, got)
	}

	rec, got = fx.do(t, "PUT", "/api/pages/"+id, map[string]any{"name": "Renamed"})
	if rec.Code != 200 || got["name"] != "Renamed" {
		t.Errorf("put: %d %v", rec.Code, got)
	}

	rec, _ = fx.do(t, "DELETE", "/api/pages/"+id, nil)
	if rec.Code != 200 {
		t.Errorf("delete: %d", rec.Code)
	}
	rec, _ = fx.do(t, "GET", "/api/pages/"+id, nil)
	if rec.Code != 404 {
		t.Errorf("get after delete: %d", rec.Code)
	}
}

func TestCreatePageValidation(t *testing.T) {
	fx := newAPIFixture(t)
	rec, _ := fx.do(t, "POST", "/api/pages", map[string]any{"owner_id": "u1", "name": "n"})
	if rec.Code != 400 {
		t.Errorf("missing url: %d", rec.Code)
	}
}

func TestCreatePageWithoutName(t *testing.T) {
	// WHAT: Omitting the name takes it from the fetched page title.
	fx := newAPIFixture(t)
	fx.setContent("<html><head><title>Release Notes</title></head><body>v1</body></html>")

	rec, got := fx.do(t, "POST", "/api/pages", map[string]any{
		"owner_id": "u1", "url": fx.backend.URL,
	})
	if rec.Code != 201 {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	if got["name"] != "Release Notes" {
		t.Errorf("name: %v, want fetched title", got["name"])
	}
}

func TestCheckEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createPage(t)

	rec, got := fx.do(t, "POST", fmt.Sprintf("/api/pages/%s/check", id), nil)
	if rec.Code != 200 || got["status"] != "created" {
		t.Errorf("first check: %d %v", rec.Code, got)
	}

	rec, got = fx.do(t, "POST", fmt.Sprintf("/api/pages/%s/check", id), nil)
	if rec.Code != 200 || got["status"] != "unchanged" {
		t.Errorf("second check: %d %v", rec.Code, got)
	}
}

func TestDetailFlow(t *testing.T) {
	// WHAT: The detail endpoint checks the page, reports the sanitized
	// unseen diff, and then marks the latest snapshot as seen.
	fx := newAPIFixture(t)
	id := fx.createPage(t)

	fx.do(t, "POST", fmt.Sprintf("/api/pages/%s/check", id), nil)
	fx.setContent("<h1>v2</h1>")

	rec, got := fx.do(t, "GET", fmt.Sprintf("/api/pages/%s/detail", id), nil)
	if rec.Code != 200 {
		t.Fatalf("detail: %d %s", rec.Code, rec.Body)
	}
	diff, ok := got["diff"].(map[string]any)
	if !ok {
		t.Fatalf("no diff in detail: %v", got)
	}
	inline, _ := diff["inline"].(string)
	if !strings.Contains(inline, "<del>") || !strings.Contains(inline, "<ins>") {
		t.Errorf("inline diff: %q", inline)
	}
	if strings.Contains(inline, "<h1>") {
		t.Errorf("unsanitized markup leaked: %q", inline)
	}

	// Watermark is now at the latest snapshot.
	rec, got = fx.do(t, "GET", "/api/pages/"+id, nil)
	if got["has_changed"] != false {
		t.Errorf("has_changed after detail: %v %d", got["has_changed"], rec.Code)
	}
}

func TestDetailFetchErrorInline(t *testing.T) {
	// WHAT: A dead backend appears as fetch_error in the detail payload in
	// place of the diff, and nothing stored moves: the change flag stays
	// set and the watermark stays where it was.
	fx := newAPIFixture(t)
	id := fx.createPage(t)
	fx.do(t, "POST", fmt.Sprintf("/api/pages/%s/check", id), nil)
	fx.setContent("<h1>v2</h1>")
	fx.do(t, "POST", fmt.Sprintf("/api/pages/%s/check", id), nil)

	_, before := fx.do(t, "GET", "/api/pages/"+id, nil)
	if before["has_changed"] != true {
		t.Fatalf("setup: change not flagged: %v", before)
	}

	fx.backend.Close()

	rec, got := fx.do(t, "GET", fmt.Sprintf("/api/pages/%s/detail", id), nil)
	if rec.Code != 200 {
		t.Fatalf("detail: %d %s", rec.Code, rec.Body)
	}
	if _, ok := got["fetch_error"].(string); !ok {
		t.Errorf("fetch_error missing: %v", got)
	}
	if _, ok := got["diff"]; ok {
		t.Errorf("diff rendered despite fetch failure: %v", got)
	}

	_, after := fx.do(t, "GET", "/api/pages/"+id, nil)
	if after["has_changed"] != true {
		t.Error("change flag cleared by a failed detail fetch")
	}
	if after["last_seen_snapshot_id"] != before["last_seen_snapshot_id"] {
		t.Errorf("watermark moved: %v -> %v",
			before["last_seen_snapshot_id"], after["last_seen_snapshot_id"])
	}
}

func TestSnapshotAndDiffEndpoints(t *testing.T) {
	fx := newAPIFixture(t)
	id := fx.createPage(t)

	fx.do(t, "POST", fmt.Sprintf("/api/pages/%s/check", id), nil)
	fx.setContent("<h1>v2</h1>")
	fx.do(t, "POST", fmt.Sprintf("/api/pages/%s/check", id), nil)

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, httptest.NewRequest("GET", fmt.Sprintf("/api/pages/%s/snapshots", id), nil))
	var snaps []map[string]any
	json.Unmarshal(rec.Body.Bytes(), &snaps)
	if len(snaps) != 2 {
		t.Fatalf("snapshots: %d", len(snaps))
	}

	newest := snaps[0]["id"].(string)
	oldest := snaps[1]["id"].(string)

	recD, diff := fx.do(t, "GET",
		fmt.Sprintf("/api/pages/%s/diff?base=%s&target=%s", id, oldest, newest), nil)
	if recD.Code != 200 || diff["identical"] != false {
		t.Errorf("diff: %d %v", recD.Code, diff)
	}

	recM, _ := fx.do(t, "GET", fmt.Sprintf("/api/pages/%s/diff?base=%s", id, oldest), nil)
	if recM.Code != 400 {
		t.Errorf("missing target: %d", recM.Code)
	}

	recH := httptest.NewRecorder()
	fx.handler.ServeHTTP(recH, httptest.NewRequest("GET", fmt.Sprintf("/api/pages/%s/history", id), nil))
	var hist []map[string]any
	json.Unmarshal(recH.Body.Bytes(), &hist)
	if len(hist) != 2 {
		t.Errorf("history: %d entries", len(hist))
	}
}

func TestSettingsEndpoints(t *testing.T) {
	fx := newAPIFixture(t)

	rec, _ := fx.do(t, "GET", "/api/settings/u1", nil)
	if rec.Code != 404 {
		t.Errorf("unset settings: %d", rec.Code)
	}

	rec, _ = fx.do(t, "PUT", "/api/settings/u1", map[string]any{
		"channel": "email", "email_address": "u@example.com",
	})
	if rec.Code != 200 {
		t.Fatalf("put settings: %d %s", rec.Code, rec.Body)
	}

	rec, got := fx.do(t, "GET", "/api/settings/u1", nil)
	if rec.Code != 200 || got["email_address"] != "u@example.com" {
		t.Errorf("get settings: %d %v", rec.Code, got)
	}

	rec, _ = fx.do(t, "PUT", "/api/settings/u1", map[string]any{"channel": "fax"})
	if rec.Code != 400 {
		t.Errorf("bad channel: %d", rec.Code)
	}
}
