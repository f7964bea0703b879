package httpx

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mounter registers a group of routes on the shared mux.
type Mounter interface {
	Mount(mux *http.ServeMux, auth *Auth)
}

type Options struct {
	Auth     *Auth
	Metrics  *Metrics
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, opts Options, mounts ...Mounter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	for _, m := range mounts {
		m.Mount(mux, opts.Auth)
	}

	var h http.Handler = mux
	if opts.Metrics != nil {
		h = opts.Metrics.Middleware(h)
	}
	h = AccessLog(log)(h)
	h = RequestID(h)

	return h
}
