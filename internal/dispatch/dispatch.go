// Package dispatch implements the fan-out dispatcher (spec §4.8): race one
// logical request across every member of a replica group, return the first
// success, and cancel the rest. There is no original_source/ file dedicated
// to this concern (the Rust use-cases inline the race with tokio::select!);
// this is grounded on that inlined pattern plus the teacher's own fan-out
// shape in internal/ghostpool, translated to context.Context cancellation.
package dispatch

import (
	"context"

	"github.com/ocx/cachecluster/internal/cacheerr"
	"github.com/ocx/cachecluster/internal/metrics"
	"github.com/ocx/cachecluster/internal/socket"
)

// Requester is the capability a dispatch target must expose. *socket.Multiplexer
// satisfies it directly; tests substitute fakes.
type Requester interface {
	Request(ctx context.Context, action, payload string) (socket.Response, error)
}

type result struct {
	resp socket.Response
	err  error
}

// Dispatch issues (action, payload) concurrently on every member, returning
// the first successful Response. As soon as one succeeds the remaining
// in-flight requests are cancelled. If every member fails, the last observed
// error is returned (ties broken by completion order). An empty member list
// is a ConnectionError.
func Dispatch(ctx context.Context, members []Requester, action, payload string) (socket.Response, error) {
	if len(members) == 0 {
		return socket.Response{}, cacheerr.New(cacheerr.KindConnectionError, "replica group is empty")
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan result, len(members))
	for _, m := range members {
		m := m
		go func() {
			resp, err := m.Request(raceCtx, action, payload)
			results <- result{resp: resp, err: err}
		}()
	}

	var lastErr error
	for i := 0; i < len(members); i++ {
		r := <-results
		if r.err == nil {
			cancel() // the losing Requests see raceCtx done and evict their own rids
			metrics.DispatchWins.Inc()
			return r.resp, nil
		}
		lastErr = r.err
	}
	metrics.DispatchLosses.Inc()
	return socket.Response{}, lastErr
}
