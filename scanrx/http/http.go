// Package http serves scan status, recent events, control, and metrics.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/astrotrace/scanrx/scanrx"
)

// NewMux routes the scanner's REST surface. stop ends the scan; it is the
// Run context's cancel.
func NewMux(s *scanrx.Scanner, stop context.CancelFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.State())
	})
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		n := 50
		if v := r.URL.Query().Get("n"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				n = parsed
			}
		}
		writeJSON(w, s.Events().Recent(n))
	})
	mux.HandleFunc("POST /tune", func(w http.ResponseWriter, r *http.Request) {
		freq, err := strconv.ParseUint(r.URL.Query().Get("freq_hz"), 10, 64)
		if err != nil {
			http.Error(w, "bad freq_hz", http.StatusBadRequest)
			return
		}
		got, err := s.TuneTo(freq)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, map[string]uint64{"freq_hz": got})
	})
	mux.HandleFunc("POST /stop", func(w http.ResponseWriter, r *http.Request) {
		stop()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.Metrics().Registry(), promhttp.HandlerOpts{}))
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("status encode", "err", err)
	}
}

// Serve runs the listener until ctx ends, then shuts down gracefully.
func Serve(ctx context.Context, addr string, s *scanrx.Scanner, stop context.CancelFunc) error {
	srv := &http.Server{Addr: addr, Handler: NewMux(s, stop)}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("status listener", "addr", addr)
	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	case err := <-errc:
		return err
	}
}
