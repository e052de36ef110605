// Package socket implements the line-oriented request/response multiplexer
// (spec §4.2), grounded on the original source's crates/net/src/socket.rs
// (a Socket struct pairing an mpsc outbound sink with a DashMap of
// request-id -> oneshot waiter). Go has no oneshot channel type, so each
// waiter is a buffered channel of capacity one; there is no DashMap, so the
// pending map is a plain map behind a mutex, matching the teacher's general
// preference for explicit locking over exotic concurrent collections.
package socket

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocx/cachecluster/internal/cacheerr"
	"github.com/ocx/cachecluster/internal/metrics"
	"github.com/ocx/cachecluster/internal/wire"
)

// Response is what Request returns on success.
type Response struct {
	Code    int
	Payload string
}

// Handler processes an incoming REQ frame the peer sent us. Implementations
// reply via m.SendResponse.
type Handler interface {
	HandleRequest(m *Multiplexer, req wire.Req)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(m *Multiplexer, req wire.Req)

func (f HandlerFunc) HandleRequest(m *Multiplexer, req wire.Req) { f(m, req) }

type waiter chan waitResult

type waitResult struct {
	resp Response
	err  error
}

// Multiplexer rides atop one reliable bidirectional byte stream, correlating
// RES frames to in-flight REQ frames by rid, and dispatches incoming REQ
// frames to a Handler. The outbound sink is an unbounded queue drained by a
// single writer goroutine, so Request never blocks on the network.
type Multiplexer struct {
	ID string

	w           io.Writer
	maxDuration time.Duration
	handler     Handler

	counter atomic.Uint64

	mu      sync.Mutex
	pending map[string]waiter
	closed  bool

	outMu   sync.Mutex
	outCond *sync.Cond
	outQ    [][]byte
	outDone bool
}

// New constructs a Multiplexer writing frames to w and starts its writer
// goroutine. Close must be called to stop the writer and fail any waiters.
func New(id string, w io.Writer, maxDuration time.Duration, handler Handler) *Multiplexer {
	m := &Multiplexer{
		ID:          id,
		w:           w,
		maxDuration: maxDuration,
		handler:     handler,
		pending:     make(map[string]waiter),
	}
	m.counter.Store(1)
	m.outCond = sync.NewCond(&m.outMu)
	go m.runWriter()
	return m
}

func (m *Multiplexer) nextRID() string {
	n := m.counter.Add(1)
	return ridFromUint(n)
}

// Request allocates a rid, sends REQ, and suspends until a matching RES
// arrives, max_duration elapses, the outbound sink is closed, or ctx is
// cancelled (treated the same as waiter cancellation: ResponseChannelClosed).
func (m *Multiplexer) Request(ctx context.Context, action, payload string) (Response, error) {
	rid := m.nextRID()
	w := make(waiter, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Response{}, cacheerr.New(cacheerr.KindWriteChannelClosed, "multiplexer "+m.ID+" closed")
	}
	m.pending[rid] = w
	m.mu.Unlock()

	line := wire.EncodeReq(rid, action, payload)
	if err := m.enqueueBytes(line); err != nil {
		m.evict(rid)
		return Response{}, err
	}

	timer := time.NewTimer(m.maxDuration)
	defer timer.Stop()

	select {
	case res := <-w:
		return res.resp, res.err
	case <-timer.C:
		m.evict(rid)
		metrics.MultiplexerTimeouts.Inc()
		return Response{}, cacheerr.New(cacheerr.KindTimeout, "request "+rid+" on "+m.ID+" timed out")
	case <-ctx.Done():
		m.evict(rid)
		return Response{}, cacheerr.Wrap(cacheerr.KindResponseChannelClosed, "request "+rid+" cancelled", ctx.Err())
	}
}

func (m *Multiplexer) evict(rid string) {
	m.mu.Lock()
	delete(m.pending, rid)
	m.mu.Unlock()
}

// SendResponse encodes and enqueues a RES frame.
func (m *Multiplexer) SendResponse(rid string, code int, payload string) error {
	return m.enqueueBytes(wire.EncodeRes(rid, code, payload))
}

// DispatchLine parses one incoming line and routes it: a Res is delivered to
// its waiter (dropped silently if none is registered, matching the source's
// "log the orphan and move on" behavior); a Req goes to the Handler; Other
// lines are logged.
func (m *Multiplexer) DispatchLine(line string) {
	parsed, err := wire.Parse(line)
	if err != nil {
		slog.Warn("socket: malformed frame", "mux", m.ID, "err", err)
		return
	}

	switch parsed.Kind {
	case wire.KindRes:
		f := parsed.Res
		m.mu.Lock()
		w, ok := m.pending[f.RID]
		if ok {
			delete(m.pending, f.RID)
		}
		m.mu.Unlock()
		if !ok {
			slog.Debug("socket: unmatched RES", "mux", m.ID, "rid", f.RID)
			return
		}
		var resErr error
		if f.Code < 200 || f.Code >= 300 {
			resErr = cacheerr.New(cacheerr.KindConnectionError, f.Payload)
		}
		w <- waitResult{resp: Response{Code: f.Code, Payload: f.Payload}, err: resErr}
	case wire.KindReq:
		if m.handler != nil {
			m.handler.HandleRequest(m, *parsed.Req)
		}
	default:
		slog.Debug("socket: unrecognized line", "mux", m.ID, "line", parsed.Raw)
	}
}

// Close stops the writer goroutine and fails every pending waiter with
// WriteChannelClosed, mirroring the source dropping its mpsc sender.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	waiters := make([]waiter, 0, len(m.pending))
	for rid, w := range m.pending {
		waiters = append(waiters, w)
		delete(m.pending, rid)
	}
	m.mu.Unlock()

	for _, w := range waiters {
		w <- waitResult{err: cacheerr.New(cacheerr.KindWriteChannelClosed, "multiplexer "+m.ID+" closed")}
	}

	m.outMu.Lock()
	m.outDone = true
	m.outCond.Broadcast()
	m.outMu.Unlock()
}

func (m *Multiplexer) enqueueBytes(line []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return cacheerr.New(cacheerr.KindWriteChannelClosed, "multiplexer "+m.ID+" closed")
	}

	m.outMu.Lock()
	m.outQ = append(m.outQ, line)
	m.outCond.Signal()
	m.outMu.Unlock()
	return nil
}

// runWriter is the single writer task that serializes all outbound frames.
func (m *Multiplexer) runWriter() {
	for {
		m.outMu.Lock()
		for len(m.outQ) == 0 && !m.outDone {
			m.outCond.Wait()
		}
		if len(m.outQ) == 0 && m.outDone {
			m.outMu.Unlock()
			return
		}
		batch := m.outQ
		m.outQ = nil
		m.outMu.Unlock()

		for _, b := range batch {
			if _, err := m.w.Write(b); err != nil {
				slog.Warn("socket: write failed", "mux", m.ID, "err", err)
			}
		}
	}
}

func ridFromUint(n uint64) string {
	const digits = "0123456789"
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 20)
	for n > 0 {
		buf = append(buf, digits[n%10])
		n /= 10
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
