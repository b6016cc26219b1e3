package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// allowAll disables SSRF checks so tests can hit httptest loopback servers.
func allowAll(string) error { return nil }

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "mntr-test/1.0" {
			t.Errorf("user-agent: %q", got)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<h1>Hello</h1>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "mntr-test/1.0", URLValidator: allowAll})
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(res.Body) != "<h1>Hello</h1>" {
		t.Errorf("body: %q", res.Body)
	}
	if res.StatusCode != 200 {
		t.Errorf("status: %d", res.StatusCode)
	}
	if res.ContentType != "text/html" {
		t.Errorf("content-type: %q", res.ContentType)
	}
}

func TestFetchHTTPError(t *testing.T) {
	// WHAT: Non-2xx responses are errors but still report the status code.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{URLValidator: allowAll})
	res, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if res == nil || res.StatusCode != 404 {
		t.Errorf("result: %+v", res)
	}
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	f := New(Config{MaxBytes: 100, URLValidator: allowAll})
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.Body) != 100 {
		t.Errorf("body length: %d, want truncation at 100", len(res.Body))
	}
}

func TestFetchBlockedURL(t *testing.T) {
	// WHAT: The default validator rejects loopback addresses before any
	// request is made.
	f := New(Config{})
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:9/")
	if err == nil {
		t.Fatal("expected SSRF block")
	}
	if !strings.Contains(err.Error(), "SSRF") {
		t.Errorf("error: %v", err)
	}
}

func TestFetchRedirectCapped(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	f := New(Config{URLValidator: allowAll})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "redirects") {
		t.Errorf("expected redirect cap error, got %v", err)
	}
}
