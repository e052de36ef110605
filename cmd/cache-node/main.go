// cache-node is the storage node process bootstrap: it dials a router,
// announces its role, and serves PUT/GET/PING against a local cache engine.
// spec.md places dialing/accept loops and environment parsing out of scope
// (§1); this wires those collaborators around internal/cache and
// internal/socket, which carry the specified behavior.
package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"log/slog"

	flag "github.com/spf13/pflag"

	"github.com/ocx/cachecluster/internal/adminhttp"
	"github.com/ocx/cachecluster/internal/cache"
	"github.com/ocx/cachecluster/internal/clock"
	"github.com/ocx/cachecluster/internal/config"
	"github.com/ocx/cachecluster/internal/metrics"
	"github.com/ocx/cachecluster/internal/socket"
	"github.com/ocx/cachecluster/internal/wire"
)

func main() {
	_ = godotenv.Load()

	var (
		capacity    = flag.Int("capacity", 0, "max cached keys (overrides config)")
		wheelSize   = flag.Int("wheel-size", 0, "timing wheel slot count, power of two (overrides config)")
		tickMs      = flag.Uint64("tick-ms", 0, "timing wheel tick width in milliseconds (overrides config)")
		masterIPs   = flag.StringSlice("master-ips", nil, "router addresses to dial, in failover order")
		role        = flag.String("role", "", "advertised role: primary or secondary (overrides ROLE env)")
		metricsAddr = flag.String("metrics-addr", "", "admin HTTP listen address (overrides config)")
	)
	flag.Parse()

	cfg := config.Get()
	if *capacity > 0 {
		cfg.Cache.Capacity = *capacity
	}
	if *wheelSize > 0 {
		cfg.Cache.WheelSize = *wheelSize
	}
	if *tickMs > 0 {
		cfg.Cache.WheelTickMillis = *tickMs
	}
	if len(*masterIPs) > 0 {
		cfg.Node.MasterIPs = *masterIPs
	}
	if *role != "" {
		cfg.Node.Role = *role
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}

	engine := cache.New(cache.Config{
		Capacity:   cfg.Cache.Capacity,
		WheelSize:  cfg.Cache.WheelSize,
		TickMillis: cfg.Cache.WheelTickMillis,
		Clock:      clock.System{},
	})
	reaper := cache.NewReaper(engine, time.Duration(cfg.Cache.ReaperPeriodMs)*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reaper.RunLogged(ctx, nodeDisplayName(cfg))

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	go func() {
		admin := adminhttp.NewNodeRouter(reg)
		slog.Info("cache-node: admin http listening", "addr", cfg.Server.MetricsAddr)
		if err := http.ListenAndServe(cfg.Server.MetricsAddr, admin); err != nil {
			slog.Error("cache-node: admin http server exited", "err", err)
		}
	}()

	id := uuid.NewString()
	identLine := identificationLine(cfg.Node.Role, id)

	if len(cfg.Node.MasterIPs) == 0 {
		slog.Error("cache-node: no MASTER_IPS configured")
		os.Exit(1)
	}

	conn, addr, err := dialWithFailover(cfg.Node.MasterIPs)
	if err != nil {
		slog.Error("cache-node: could not reach any configured router", "err", err)
		os.Exit(1)
	}
	slog.Info("cache-node: connected to router", "addr", addr, "id", id, "role", cfg.Node.Role)

	if _, err := conn.Write([]byte(identLine)); err != nil {
		slog.Error("cache-node: failed to send identification line", "err", err)
		os.Exit(1)
	}

	handler := socket.HandlerFunc(func(m *socket.Multiplexer, req wire.Req) {
		code, payload := handleRequest(engine, req)
		_ = m.SendResponse(req.RID, code, payload)
	})
	mux := socket.New(id, conn, time.Duration(cfg.Dispatch.RequestTimeoutMs)*time.Millisecond, handler)
	defer mux.Close()

	reader := bufio.NewReader(conn)
	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			mux.DispatchLine(line)
		}
		if readErr != nil {
			slog.Info("cache-node: router connection closed", "err", readErr)
			return
		}
	}
}

func nodeDisplayName(cfg *config.Config) string {
	return "cache-node[" + cfg.Node.Role + "]"
}

func identificationLine(role, id string) string {
	switch role {
	case "primary":
		return "MASTER " + id + "\n"
	case "secondary":
		return "REPLICA " + id + "\n"
	default:
		return id + "\n"
	}
}

// dialWithFailover tries each address in order, mirroring the original
// client's multi-master retry (original_source apps/client/src/client.rs)
// applied symmetrically on the node's dial side.
func dialWithFailover(addrs []string) (net.Conn, string, error) {
	var lastErr error
	for _, addr := range addrs {
		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err == nil {
			return conn, addr, nil
		}
		lastErr = err
	}
	return nil, "", lastErr
}

// handleRequest applies an incoming PUT/GET/PING directly against this
// node's local cache engine (spec §4.5).
func handleRequest(engine *cache.Engine, req wire.Req) (int, string) {
	switch req.Action {
	case "PING":
		return 200, "PONG"
	case "PUT":
		key, value, ttl, hasTTL, err := parsePut(req.Payload)
		if err != nil {
			return 400, "ERROR " + err.Error()
		}
		engine.Put(key, value, hasTTL, ttl)
		return 200, ""
	case "GET":
		key, _, _ := wire.NextToken(req.Payload)
		value, ok := engine.Get(key)
		if !ok {
			return 200, ""
		}
		return 200, wire.QuoteField(value)
	default:
		return 400, "ERROR unknown action " + req.Action
	}
}

func parsePut(payload string) (key, value string, ttl uint64, hasTTL bool, err error) {
	keyTok, rest, ok := wire.NextToken(payload)
	if !ok {
		return "", "", 0, false, errBadPut("missing key")
	}
	valueTok, rest2, ok := wire.NextToken(rest)
	if !ok {
		return "", "", 0, false, errBadPut("missing value")
	}
	ttlTok, rest3, hasTTLTok := wire.NextToken(rest2)
	if !hasTTLTok {
		return keyTok, valueTok, 0, false, nil
	}
	if _, leftover, more := wire.NextToken(rest3); more || leftover != "" {
		return "", "", 0, false, errBadPut("PUT payload has trailing tokens after TTL")
	}
	n, convErr := strconv.ParseUint(ttlTok, 10, 64)
	if convErr != nil {
		return "", "", 0, false, errBadPut("TTL is not an integer")
	}
	return keyTok, valueTok, n, true, nil
}

type badPutError string

func (e badPutError) Error() string { return string(e) }

func errBadPut(msg string) error { return badPutError(msg) }
