package router_test

import (
	"context"
	"testing"

	"github.com/ocx/cachecluster/internal/cacheerr"
	"github.com/ocx/cachecluster/internal/dispatch"
	"github.com/ocx/cachecluster/internal/router"
	"github.com/ocx/cachecluster/internal/socket"
	"github.com/ocx/cachecluster/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRing struct {
	nodeID string
	ok     bool
}

func (f fakeRing) Locate(hash uint64) (string, bool) { return f.nodeID, f.ok }

type fakeTopology struct {
	members []dispatch.Requester
}

func (f fakeTopology) MembersOf(nodeID string) []dispatch.Requester { return f.members }

type fakeMember struct {
	code    int
	payload string
	err     error
	lastReq string
}

func (f *fakeMember) Request(ctx context.Context, action, payload string) (socket.Response, error) {
	f.lastReq = action + " " + payload
	if f.err != nil {
		return socket.Response{}, f.err
	}
	return socket.Response{Code: f.code, Payload: f.payload}, nil
}

func TestPing(t *testing.T) {
	r := router.New(fakeRing{}, fakeTopology{})
	code, payload := r.Ping()
	assert.Equal(t, 200, code)
	assert.Equal(t, "PONG", payload)
}

func TestPutEmptyKeyIsBadRequest(t *testing.T) {
	r := router.New(fakeRing{}, fakeTopology{})
	code, payload := r.Put(context.Background(), "", "v", nil)
	assert.Equal(t, 400, code)
	assert.Contains(t, payload, "Key is empty")
}

func TestPutEmptyValueIsBadRequest(t *testing.T) {
	r := router.New(fakeRing{}, fakeTopology{})
	code, payload := r.Put(context.Background(), "k", "", nil)
	assert.Equal(t, 400, code)
	assert.Contains(t, payload, "Value is empty")
}

func TestPutNodeNotFound(t *testing.T) {
	r := router.New(fakeRing{ok: false}, fakeTopology{})
	code, _ := r.Put(context.Background(), "k", "v", nil)
	assert.Equal(t, 503, code)
}

func TestPutSuccess(t *testing.T) {
	member := &fakeMember{code: 200, payload: ""}
	r := router.New(fakeRing{nodeID: "m1", ok: true}, fakeTopology{members: []dispatch.Requester{member}})

	code, payload := r.Put(context.Background(), "foo", "bar", nil)
	require.Equal(t, 200, code)
	assert.Equal(t, "", payload)
	assert.Contains(t, member.lastReq, "PUT foo")
}

func TestGetMissReturnsEmptyPayload(t *testing.T) {
	member := &fakeMember{code: 200, payload: ""}
	r := router.New(fakeRing{nodeID: "m1", ok: true}, fakeTopology{members: []dispatch.Requester{member}})

	code, payload := r.Get(context.Background(), "missing")
	require.Equal(t, 200, code)
	assert.Equal(t, "", payload)
}

func TestGetAllReplicasFailReturnsConnectionError(t *testing.T) {
	member := &fakeMember{err: cacheerr.New(cacheerr.KindConnectionError, "down")}
	r := router.New(fakeRing{nodeID: "m1", ok: true}, fakeTopology{members: []dispatch.Requester{member}})

	code, _ := r.Get(context.Background(), "k")
	assert.Equal(t, 502, code)
}

func TestHandleFramePutParsesQuotedValueAndTTL(t *testing.T) {
	member := &fakeMember{code: 200}
	r := router.New(fakeRing{nodeID: "m1", ok: true}, fakeTopology{members: []dispatch.Requester{member}})

	req := wire.Req{RID: "1", Action: "PUT", Payload: `foo "bar baz" 500`}
	code, _ := r.HandleFrame(context.Background(), req)
	assert.Equal(t, 200, code)
	assert.Contains(t, member.lastReq, "foo")
	assert.Contains(t, member.lastReq, "500")
}

func TestHandleFramePutTrailingGarbageIsBadRequest(t *testing.T) {
	r := router.New(fakeRing{nodeID: "m1", ok: true}, fakeTopology{})
	req := wire.Req{RID: "1", Action: "PUT", Payload: `foo "bar" 500 extra`}
	code, _ := r.HandleFrame(context.Background(), req)
	assert.Equal(t, 400, code)
}

func TestHandleFrameUnknownAction(t *testing.T) {
	r := router.New(fakeRing{}, fakeTopology{})
	req := wire.Req{RID: "1", Action: "WAT", Payload: ""}
	code, _ := r.HandleFrame(context.Background(), req)
	assert.Equal(t, 400, code)
}
