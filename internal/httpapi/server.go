// Package httpapi implements the query protocol of spec §6 as a plain
// net/http handler fronted by gorilla/mux, the way entitydb's main.go
// wires its own api handlers onto a mux.Router subrouter. FastCGI
// framing itself is an external collaborator's transport choice (spec
// §1); this package preserves the JSON/binary response contracts spec §6
// actually mandates.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/alexandria-go/alexidx/internal/config"
	"github.com/alexandria-go/alexidx/internal/logx"
	"github.com/alexandria-go/alexidx/internal/query"
	"github.com/alexandria-go/alexidx/internal/querycache"
	"github.com/alexandria-go/alexidx/internal/workerpool"
)

// Server owns the query engine, the worker pool that bounds concurrent
// requests (spec §5), and an optional whole-response cache.
type Server struct {
	Engine *query.Engine
	Pool   *workerpool.Pool
	Cache  *querycache.Cache[*query.Response]
	Cfg    *config.Config

	StartedAt time.Time
}

// New builds a Server ready to have its routes registered.
func New(engine *query.Engine, pool *workerpool.Pool, cache *querycache.Cache[*query.Response], cfg *config.Config) *Server {
	return &Server{Engine: engine, Pool: pool, Cache: cache, Cfg: cfg, StartedAt: time.Now()}
}

// Router builds the gorilla/mux router for the query protocol (spec §6):
// a single path, "/", whose behaviour branches on which query parameters
// are present, plus an operational "/status" endpoint, grounded in
// entitydb's main.go router.HandleFunc wiring.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.recoverMiddleware(s.handleRoot)).Methods(http.MethodGet)
	r.HandleFunc("/status", s.recoverMiddleware(s.handleStatus)).Methods(http.MethodGet)
	return r
}

// recoverMiddleware converts a panic in a handler into a status=error
// JSON response rather than crashing the worker goroutine (spec §7 "the
// query path never panics the worker"), grounded in entitydb's defensive
// handler wrapping pattern.
func (s *Server) recoverMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logx.Error("httpapi: recovered panic handling %s: %v", r.URL.Path, rec)
				respondError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next(w, r)
	}
}

// handleRoot dispatches on the request's query parameters per spec §6:
// `i=` for the binary ids endpoint, `s=` for word_stats, `u=` for URL
// lookup, and `q=` for textual search (the default).
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch {
	case q.Has("i"):
		s.handleIds(w, r, q.Get("i"))
	case q.Has("s"):
		s.handleWordStats(w, r, q.Get("s"))
	case q.Has("u"):
		s.handleURL(w, r, q.Get("u"))
	case q.Has("q"):
		s.handleSearch(w, r, q.Get("q"), q.Get("d") == "a")
	default:
		respondError(w, http.StatusBadRequest, "missing query parameter: one of q, s, u, i is required")
	}
}
