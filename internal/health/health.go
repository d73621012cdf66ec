// Package health serves liveness and readiness probes for the HTTP listener.
//
//   - GET /healthz reports 200 while the process can serve HTTP.
//   - GET /readyz runs every registered [Checker] and reports 200 only when
//     all of them pass, 503 otherwise.
//
// Both endpoints answer with a JSON object carrying a "status" of "ok" or
// "fail" and, for /readyz, a "checks" map keyed by checker name.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/secops-mcp/internal/config"
	"github.com/MrWong99/secops-mcp/internal/resolver"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when healthy.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// ClientResolver resolves a Chronicle client. [*resolver.Resolver] satisfies it.
type ClientResolver interface {
	Resolve(ctx context.Context, o config.Overrides) resolver.Result
}

// ChronicleClient returns a [Checker] named "chronicle_client" that passes
// when r produces a client for the environment and defaults record.
func ChronicleClient(r ClientResolver) Checker {
	return Checker{
		Name: "chronicle_client",
		Check: func(ctx context.Context) error {
			return r.Resolve(ctx, config.Overrides{}).Unavailable()
		},
	}
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker set is fixed by [New].
type Handler struct {
	checkers []Checker
}

// New returns a [Handler] for the given checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs all checkers concurrently, each under [checkTimeout].
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks, err := h.run(r.Context())

	res := response{Status: "ok", Checks: checks}
	code := http.StatusOK
	if err != nil {
		res.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// run evaluates every checker and returns the per-name outcome together with
// the joined failures.
func (h *Handler) run(ctx context.Context) (map[string]string, error) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		errs   []error
		g      errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				errs = append(errs, err)
			} else {
				checks[c.Name] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()
	return checks, errors.Join(errs...)
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"fail"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
