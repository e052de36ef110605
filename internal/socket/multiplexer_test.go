package socket_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ocx/cachecluster/internal/socket"
	"github.com/ocx/cachecluster/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback captures everything written to it so a test goroutine can scan
// completed lines out and feed them back into a multiplexer, approximating a
// live connection without opening a real socket.
type loopback struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *loopback) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *loopback) nextLine() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buf.Bytes()
	idx := bytes.IndexByte(b, '\n')
	if idx < 0 {
		return "", false
	}
	line := string(b[:idx+1])
	l.buf.Next(idx + 1)
	return line, true
}

func TestRequestSuccess(t *testing.T) {
	out := &loopback{}
	m := socket.New("m1", out, time.Second, nil)
	defer m.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			line, ok := out.nextLine()
			if !ok {
				time.Sleep(time.Millisecond)
				continue
			}
			parsed, err := wire.Parse(line)
			if err != nil || parsed.Kind != wire.KindReq {
				continue
			}
			_ = m.SendResponse(parsed.Req.RID, 200, "pong")
		}
	}()

	resp, err := m.Request(context.Background(), "PING", "")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code)
	assert.Equal(t, "pong", resp.Payload)
}

func TestRequestTimeout(t *testing.T) {
	out := &loopback{}
	m := socket.New("m1", out, 10*time.Millisecond, nil)
	defer m.Close()

	_, err := m.Request(context.Background(), "PING", "")
	require.Error(t, err)
}

func TestDispatchLineRoutesReqToHandler(t *testing.T) {
	out := &loopback{}
	received := make(chan wire.Req, 1)
	m := socket.New("m1", out, time.Second, socket.HandlerFunc(func(mx *socket.Multiplexer, req wire.Req) {
		received <- req
	}))
	defer m.Close()

	m.DispatchLine(string(wire.EncodeReq("7", "PUT", "k v")))

	select {
	case req := <-received:
		assert.Equal(t, "7", req.RID)
		assert.Equal(t, "PUT", req.Action)
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestCloseFailsPendingWaiters(t *testing.T) {
	out := &loopback{}
	m := socket.New("m1", out, time.Second, nil)

	done := make(chan error, 1)
	go func() {
		_, err := m.Request(context.Background(), "PING", "")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("request never returned after Close")
	}
}

func TestUnmatchedResponseIsIgnored(t *testing.T) {
	out := &loopback{}
	m := socket.New("m1", out, time.Second, nil)
	defer m.Close()

	assert.NotPanics(t, func() {
		m.DispatchLine(string(wire.EncodeRes("999", 200, "orphan")))
	})
}

func TestConcurrentRequestsDoNotDeadlock(t *testing.T) {
	out := &loopback{}
	m := socket.New("m1", out, 50*time.Millisecond, nil)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Request(context.Background(), "PING", "")
		}()
	}
	wg.Wait()
}
