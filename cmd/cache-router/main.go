// cache-router is the master coordinator process bootstrap: it accepts
// connections from storage nodes and clients, assigns nodes into the
// topology/ring, and routes client PING/PUT/GET requests to the right
// replica group. The accept loop and environment wiring here are the
// "out of scope" collaborators spec.md §1 names; internal/router and
// internal/usecase carry the specified behavior.
package main

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"log/slog"

	flag "github.com/spf13/pflag"

	"github.com/ocx/cachecluster/internal/adminhttp"
	"github.com/ocx/cachecluster/internal/config"
	"github.com/ocx/cachecluster/internal/dispatch"
	"github.com/ocx/cachecluster/internal/hashring"
	"github.com/ocx/cachecluster/internal/metrics"
	"github.com/ocx/cachecluster/internal/router"
	"github.com/ocx/cachecluster/internal/socket"
	"github.com/ocx/cachecluster/internal/topology"
	"github.com/ocx/cachecluster/internal/usecase"
	"github.com/ocx/cachecluster/internal/wire"
	"github.com/ocx/cachecluster/internal/wsconn"
)

func main() {
	_ = godotenv.Load()

	var (
		listenAddr  = flag.String("listen", "", "address to accept node/client connections on (overrides config)")
		metricsAddr = flag.String("metrics-addr", "", "admin HTTP listen address (overrides config)")
	)
	flag.Parse()

	cfg := config.Get()
	if *listenAddr != "" {
		cfg.Bootstrap.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	ring := hashring.NewWithVirtualNodes(cfg.Ring.VirtualNodes)
	topo := topology.New[dispatch.Requester]()
	uc := usecase.New(ring, topo)
	rt := router.New(ring, topo)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	go func() {
		admin := adminhttp.NewRouter(reg, topo)
		identifyTimeout := time.Duration(cfg.Cache.IdentifyTimeoutS) * time.Second
		requestTimeout := time.Duration(cfg.Dispatch.RequestTimeoutMs) * time.Millisecond
		admin.HandleFunc("/ws", wsHandler(uc, rt, identifyTimeout, requestTimeout))
		slog.Info("cache-router: admin http listening", "addr", cfg.Server.MetricsAddr)
		if err := http.ListenAndServe(cfg.Server.MetricsAddr, admin); err != nil {
			slog.Error("cache-router: admin http server exited", "err", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.Bootstrap.ListenAddr)
	if err != nil {
		slog.Error("cache-router: listen failed", "addr", cfg.Bootstrap.ListenAddr, "err", err)
		os.Exit(1)
	}
	slog.Info("cache-router: listening", "addr", cfg.Bootstrap.ListenAddr)

	identifyTimeout := time.Duration(cfg.Cache.IdentifyTimeoutS) * time.Second
	requestTimeout := time.Duration(cfg.Dispatch.RequestTimeoutMs) * time.Millisecond

	for {
		conn, err := ln.Accept()
		if err != nil {
			slog.Warn("cache-router: accept failed", "err", err)
			continue
		}
		go handleConn(conn, uc, rt, identifyTimeout, requestTimeout)
	}
}

func handleConn(conn net.Conn, uc *usecase.UseCase, rt *router.Router, identifyTimeout, requestTimeout time.Duration) {
	reader := bufio.NewReader(conn)

	_ = conn.SetReadDeadline(time.Now().Add(identifyTimeout))
	line, err := reader.ReadString('\n')
	_ = conn.SetReadDeadline(time.Time{})

	mux, cleanup := admitConnection(line, err, conn, uc, rt, requestTimeout)
	defer cleanup()
	defer conn.Close()

	for {
		l, readErr := reader.ReadString('\n')
		if l != "" {
			mux.DispatchLine(l)
		}
		if readErr != nil {
			return
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsHandler mirrors handleConn for browser-hosted clients: the multiplexer's
// "any reliable bidirectional byte stream" contract (spec §4.2) is satisfied
// by a websocket connection exactly as it is by a raw TCP one.
func wsHandler(uc *usecase.UseCase, rt *router.Router, identifyTimeout, requestTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("cache-router: websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		_ = conn.SetReadDeadline(time.Now().Add(identifyTimeout))
		_, msg, readErr := conn.ReadMessage()
		_ = conn.SetReadDeadline(time.Time{})

		mux, cleanup := admitConnection(string(msg), readErr, wsconn.Writer{Conn: conn}, uc, rt, requestTimeout)
		defer cleanup()

		wsconn.ReadLoop(conn, mux.DispatchLine)
	}
}

// admitConnection runs identification against identLine (falling back to an
// anonymous client on a timeout or parse failure), builds the multiplexer
// over w, and assigns the connection into the topology if it announced
// itself as a node. It returns the multiplexer and a cleanup func the caller
// must defer.
func admitConnection(identLine string, identErr error, w io.Writer, uc *usecase.UseCase, rt *router.Router, requestTimeout time.Duration) (*socket.Multiplexer, func()) {
	kind, id, parseErr := usecase.ParseIdentification(identLine)
	if identErr != nil || parseErr != nil {
		id = uuid.NewString()
		kind = usecase.KindClient
		slog.Info("cache-router: identification timed out, treating as anonymous client", "id", id)
	}

	var handler socket.Handler
	isNode := kind == usecase.KindPrimary || kind == usecase.KindSecondary
	if !isNode {
		handler = socket.HandlerFunc(func(m *socket.Multiplexer, req wire.Req) {
			code, payload := rt.HandleFrame(context.Background(), req)
			_ = m.SendResponse(req.RID, code, payload)
		})
	}
	mux := socket.New(id, w, requestTimeout, handler)

	if !isNode {
		slog.Info("cache-router: client connected", "id", id)
		return mux, mux.Close
	}

	if assignErr := uc.AssignNode(id, kind, dispatch.NewBreakerRequester(id, mux)); assignErr != nil {
		slog.Warn("cache-router: node assignment failed", "id", id, "kind", kind, "err", assignErr)
		return mux, mux.Close
	}
	slog.Info("cache-router: node assigned", "id", id, "kind", kind)
	return mux, func() {
		mux.Close()
		if rmErr := uc.RemoveNode(id); rmErr != nil {
			slog.Warn("cache-router: node removal failed", "id", id, "err", rmErr)
		}
		slog.Info("cache-router: node disconnected", "id", id)
	}
}
