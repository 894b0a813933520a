package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"contest-review/config"
	"contest-review/pkg/retry"
)

func newTestProvider(url string) *HTTPProvider {
	return NewHTTPProvider(
		&config.IdentityConfig{BaseURL: url, APIKey: "k", Timeout: time.Second},
		retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		zap.NewNop(),
	)
}

func TestGetUser_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/u-1" {
			t.Errorf("意外的路径: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("缺少 Authorization 头")
		}
		_, _ = w.Write([]byte(`{"id":"u-1","email":"a@example.com"}`))
	}))
	defer srv.Close()

	u, err := newTestProvider(srv.URL).GetUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetUser 失败: %v", err)
	}
	if u.Email != "a@example.com" {
		t.Errorf("期望 email=a@example.com，实际=%s", u.Email)
	}
}

func TestGetUser_RetriesOn503(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"u-1","email":"a@example.com"}`))
	}))
	defer srv.Close()

	if _, err := newTestProvider(srv.URL).GetUser(context.Background(), "u-1"); err != nil {
		t.Fatalf("期望重试后成功，实际: %v", err)
	}
	if calls != 3 {
		t.Errorf("期望调用 3 次，实际 %d 次", calls)
	}
}

func TestGetUser_NotFoundNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).GetUser(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
	if calls != 1 {
		t.Errorf("404 不应重试，实际调用 %d 次", calls)
	}
}

func TestGetUser_BadRequestNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestProvider(srv.URL).GetUser(context.Background(), "u-1")
	var se *retry.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Errorf("期望 StatusError 400，实际: %v", err)
	}
	if calls != 1 {
		t.Errorf("400 不应重试，实际调用 %d 次", calls)
	}
}
