package dispatch

import (
	"context"

	"github.com/ocx/cachecluster/internal/cacheerr"
	"github.com/ocx/cachecluster/internal/circuitbreaker"
	"github.com/ocx/cachecluster/internal/socket"
)

// BreakerRequester wraps a Requester with a circuit breaker keyed by the
// node's id. Dispatch races every member of a replica group on every
// request; without this, a member that has gone unreachable still eats a
// full request timeout on each race instead of failing fast.
type BreakerRequester struct {
	NodeID string
	Inner  Requester
	cb     *circuitbreaker.CircuitBreaker
}

// NewBreakerRequester builds a BreakerRequester around inner, tripping after
// three consecutive failures per circuitbreaker.NodeBreakerConfig.
func NewBreakerRequester(nodeID string, inner Requester) *BreakerRequester {
	return &BreakerRequester{
		NodeID: nodeID,
		Inner:  inner,
		cb:     circuitbreaker.New(circuitbreaker.NodeBreakerConfig(nodeID)),
	}
}

// Request satisfies Requester, short-circuiting with a ConnectionError while
// the breaker is open instead of calling through to Inner.
func (b *BreakerRequester) Request(ctx context.Context, action, payload string) (socket.Response, error) {
	result, err := b.cb.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
		return b.Inner.Request(ctx, action, payload)
	})
	if err != nil {
		if result == nil {
			return socket.Response{}, cacheerr.Wrap(cacheerr.KindConnectionError, "circuit breaker: node "+b.NodeID, err)
		}
		return result.(socket.Response), err
	}
	return result.(socket.Response), nil
}
