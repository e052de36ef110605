package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/ocx/cachecluster/internal/cacheerr"
	"github.com/ocx/cachecluster/internal/dispatch"
	"github.com/ocx/cachecluster/internal/socket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequester struct {
	delay   time.Duration
	resp    socket.Response
	err     error
	started chan struct{}
}

func (f *fakeRequester) Request(ctx context.Context, action, payload string) (socket.Response, error) {
	if f.started != nil {
		close(f.started)
	}
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return socket.Response{}, cacheerr.New(cacheerr.KindResponseChannelClosed, "cancelled")
	}
	return f.resp, f.err
}

func TestDispatchEmptyGroup(t *testing.T) {
	_, err := dispatch.Dispatch(context.Background(), nil, "PING", "")
	require.Error(t, err)
	assert.True(t, cacheerr.OfKind(err, cacheerr.KindConnectionError))
}

func TestDispatchFirstSuccessWins(t *testing.T) {
	slow := &fakeRequester{delay: 50 * time.Millisecond, resp: socket.Response{Code: 200, Payload: "slow"}}
	fast := &fakeRequester{delay: time.Millisecond, resp: socket.Response{Code: 200, Payload: "fast"}}

	resp, err := dispatch.Dispatch(context.Background(), []dispatch.Requester{slow, fast}, "GET", "k")
	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Payload)
}

func TestDispatchAllFailReturnsLastError(t *testing.T) {
	one := &fakeRequester{delay: time.Millisecond, err: cacheerr.New(cacheerr.KindConnectionError, "one down")}
	two := &fakeRequester{delay: 5 * time.Millisecond, err: cacheerr.New(cacheerr.KindConnectionError, "two down")}

	_, err := dispatch.Dispatch(context.Background(), []dispatch.Requester{one, two}, "GET", "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two down")
}

func TestDispatchSuccessAmongFailures(t *testing.T) {
	bad := &fakeRequester{delay: time.Millisecond, err: cacheerr.New(cacheerr.KindConnectionError, "down")}
	good := &fakeRequester{delay: 20 * time.Millisecond, resp: socket.Response{Code: 200, Payload: "ok"}}

	resp, err := dispatch.Dispatch(context.Background(), []dispatch.Requester{bad, good}, "GET", "k")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Payload)
}
