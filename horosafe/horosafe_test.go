package horosafe

import (
	"strings"
	"testing"
)

func TestValidateURLScheme(t *testing.T) {
	if err := ValidateURL("ftp://example.com/file"); err != ErrUnsafeScheme {
		t.Errorf("ftp: got %v, want ErrUnsafeScheme", err)
	}
	if err := ValidateURL("file:///etc/passwd"); err != ErrUnsafeScheme {
		t.Errorf("file: got %v, want ErrUnsafeScheme", err)
	}
}

func TestValidateURLPrivateIP(t *testing.T) {
	for _, u := range []string{
		"http://127.0.0.1/admin",
		"http://10.0.0.5/",
		"http://192.168.1.1/",
		"http://169.254.169.254/latest/meta-data",
	} {
		if err := ValidateURL(u); err != ErrSSRF {
			t.Errorf("%s: got %v, want ErrSSRF", u, err)
		}
	}
}

func TestValidateURLNoHost(t *testing.T) {
	if err := ValidateURL("http:///path"); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("page_abc-123.v2"); err != nil {
		t.Errorf("valid identifier rejected: %v", err)
	}
	if err := ValidateIdentifier(""); err == nil {
		t.Error("empty identifier should be rejected")
	}
	if err := ValidateIdentifier("a/b"); err == nil {
		t.Error("slash should be rejected")
	}
	if err := ValidateIdentifier(strings.Repeat("a", 300)); err == nil {
		t.Error("overlong identifier should be rejected")
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("got %q", data)
	}
	if _, err := LimitedReadAll(strings.NewReader("hello world"), 5); err == nil {
		t.Error("expected error when limit exceeded")
	}
}
