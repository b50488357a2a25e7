package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/goverture/chatrelay/metrics"
	"github.com/goverture/chatrelay/web"
)

// Routes are the handlers mounted by NewMux. Nil optional handlers are not
// mounted.
type Routes struct {
	Chat    http.Handler
	Admin   http.Handler // optional, GET /admin/usage
	Metrics http.Handler // optional, GET /metrics
}

// NewMux registers the relay routes.
func NewMux(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /{$}", web.IndexHandler())
	mux.Handle("GET /static/", web.AssetHandler("/static/"))

	mux.Handle("POST /chat", rt.Chat)
	mux.Handle("/chat", methodNotAllowed(http.MethodPost))

	mux.HandleFunc("GET /health", HealthCheck)
	mux.Handle("/health", methodNotAllowed(http.MethodGet, http.MethodHead))

	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}
	if rt.Admin != nil {
		mux.Handle("GET /admin/usage", rt.Admin)
		mux.Handle("/admin/usage", methodNotAllowed(http.MethodGet, http.MethodHead))
	}
	return mux
}

// Wrap applies the middleware chain to h, outermost first: CORS, request ID,
// access log, metrics, panic recovery.
func Wrap(h http.Handler, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return CORS(RequestID(logger, AccessLog(Instrument(m, Recover(h)))))
}

func methodNotAllowed(allowed ...string) http.Handler {
	allow := strings.Join(allowed, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}
