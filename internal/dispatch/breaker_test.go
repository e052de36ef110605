package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ocx/cachecluster/internal/cacheerr"
	"github.com/ocx/cachecluster/internal/dispatch"
	"github.com/ocx/cachecluster/internal/socket"
)

type failingRequester struct {
	calls int
	err   error
}

func (f *failingRequester) Request(ctx context.Context, action, payload string) (socket.Response, error) {
	f.calls++
	return socket.Response{}, f.err
}

func TestBreakerRequesterOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingRequester{err: errors.New("boom")}
	br := dispatch.NewBreakerRequester("node-1", inner)

	for i := 0; i < 3; i++ {
		if _, err := br.Request(context.Background(), "GET", "k"); err == nil {
			t.Fatalf("call %d: expected failure to pass through", i)
		}
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 calls to inner before trip, got %d", inner.calls)
	}

	_, err := br.Request(context.Background(), "GET", "k")
	if err == nil {
		t.Fatal("expected breaker-open error")
	}
	if inner.calls != 3 {
		t.Fatalf("expected breaker to short-circuit without calling inner, got %d calls", inner.calls)
	}
	var ce *cacheerr.Error
	if !errors.As(err, &ce) || ce.Kind != cacheerr.KindConnectionError {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestBreakerRequesterPassesThroughSuccess(t *testing.T) {
	inner := &fakeOKRequester{resp: socket.Response{Code: 200, Payload: "v"}}
	br := dispatch.NewBreakerRequester("node-1", inner)

	resp, err := br.Request(context.Background(), "GET", "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Payload != "v" {
		t.Fatalf("expected payload v, got %q", resp.Payload)
	}
}

type fakeOKRequester struct {
	resp socket.Response
}

func (f *fakeOKRequester) Request(ctx context.Context, action, payload string) (socket.Response, error) {
	return f.resp, nil
}
