package httpclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 4, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &StatusError{Code: http.StatusServiceUnavailable}
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 4, time.Millisecond, func() error {
		calls++
		return &StatusError{Code: http.StatusBadRequest}
	})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || calls != 1 {
		t.Fatalf("expected a single attempt, got err=%v calls=%d", err, calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Millisecond, func() error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsRetriable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&StatusError{Code: 502}, true},
		{&StatusError{Code: 404}, false},
		{context.DeadlineExceeded, true},
		{errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetriable(tc.err); got != tc.want {
			t.Fatalf("IsRetriable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
