package pushover

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNotifySendsForm(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		got = map[string]string{
			"token":   r.PostForm.Get("token"),
			"user":    r.PostForm.Get("user"),
			"title":   r.PostForm.Get("title"),
			"message": r.PostForm.Get("message"),
		}
		w.Write([]byte(`{"status":1,"request":"abc"}`))
	}))
	defer srv.Close()

	c := New(Config{AppToken: "app", UserToken: "user", URL: srv.URL})
	if err := c.Notify(context.Background(), "Rel. humidity OK", "Humidity returned to OK value (55%)"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	want := map[string]string{
		"token":   "app",
		"user":    "user",
		"title":   "Rel. humidity OK",
		"message": "Humidity returned to OK value (55%)",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s: got %q, want %q", k, got[k], v)
		}
	}
}

func TestNotifyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"user":"invalid","errors":["user identifier is invalid"],"status":0}`))
	}))
	defer srv.Close()

	err := New(Config{URL: srv.URL}).Notify(context.Background(), "t", "m")

	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if pErr.Kind != KindHTTP {
		t.Errorf("kind: got %s", pErr.Kind)
	}
	var sErr *StatusError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected *StatusError in chain, got %v", err)
	}
	if sErr.Code != http.StatusBadRequest {
		t.Errorf("code: got %d", sErr.Code)
	}
	if len(sErr.Errors) != 1 || sErr.Errors[0] != "user identifier is invalid" {
		t.Errorf("errors: got %v", sErr.Errors)
	}
}

func TestNotifyHTTPErrorPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream gateway failure", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(Config{URL: srv.URL}).Notify(context.Background(), "t", "m")

	var sErr *StatusError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected *StatusError in chain, got %v", err)
	}
	if sErr.Code != http.StatusBadGateway {
		t.Errorf("code: got %d", sErr.Code)
	}
	if sErr.Body != "upstream gateway failure" {
		t.Errorf("body: got %q", sErr.Body)
	}
	if !strings.Contains(err.Error(), "upstream gateway failure") {
		t.Errorf("error text does not carry body: %q", err)
	}
}

func TestNotifyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	err := New(Config{URL: srv.URL, Timeout: 50 * time.Millisecond}).Notify(context.Background(), "t", "m")

	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestNotifyConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	err := New(Config{URL: addr}).Notify(context.Background(), "t", "m")

	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindConnection {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestNotifyBadURL(t *testing.T) {
	err := New(Config{URL: "://nope"}).Notify(context.Background(), "t", "m")

	var pErr *Error
	if !errors.As(err, &pErr) || pErr.Kind != KindRequest {
		t.Fatalf("expected request error, got %v", err)
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{})
	if c.config.URL != DefaultURL {
		t.Errorf("url: got %q", c.config.URL)
	}
	if c.http.Timeout != DefaultTimeout {
		t.Errorf("timeout: got %v", c.http.Timeout)
	}
}
