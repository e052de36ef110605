// Package adminhttp exposes the small cluster-introspection HTTP surface
// (spec.md's "thin HTTP façade on the client side" is explicitly out of
// scope, but operational introspection is not the same surface: it never
// touches the wire protocol's data path). Routed with gorilla/mux, a
// teacher dependency, and instrumented with the promhttp handler from
// prometheus/client_golang.
package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TopologySnapshotter is the subset of topology.Registry the /topology
// endpoint needs; satisfied by topology.Registry[H] for any handle type H.
type TopologySnapshotter interface {
	Snapshot() map[string][]string
}

// NewRouter builds the admin mux: /healthz, /metrics, /topology.
func NewRouter(reg *prometheus.Registry, topo TopologySnapshotter) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/topology", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(topo.Snapshot())
	}).Methods(http.MethodGet)

	return r
}

// NewNodeRouter builds the admin mux for a storage node: /healthz and
// /metrics only. A node has no topology to report; that's the router's job.
func NewNodeRouter(reg *prometheus.Registry) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}
