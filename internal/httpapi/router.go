// Package httpapi wires the external and peer-to-peer HTTP surface onto the
// Job Manager: chi routing, request-ID tagging, bearer auth, and the
// {success, ...} / {success:false, error_message} response envelope used by
// every handler.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"petnet-coordinator/internal/auth"
	"petnet-coordinator/internal/db"
	"petnet-coordinator/internal/httpx"
	"petnet-coordinator/internal/jobmgr"
)

var validate = validator.New()

type requestIDKey struct{}

// NewRouter assembles the full v1 surface over mgr, authenticated by verifier.
func NewRouter(mgr *jobmgr.Manager, verifier *auth.Verifier) http.Handler {
	h := &api{mgr: mgr}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(verifier.Middleware)

	r.Route("/api/v1", func(v chi.Router) {
		v.Method(http.MethodPost, "/jobs", auth.RequireRole(http.HandlerFunc(h.submit), db.RoleOperator, db.RoleAdmin))
		v.Method(http.MethodPost, "/jobs/{jobID}/rerun", auth.RequireRole(http.HandlerFunc(h.rerun), db.RoleOperator, db.RoleAdmin))
		v.Method(http.MethodPost, "/jobs/{jobID}/cancel", auth.RequireRole(http.HandlerFunc(h.cancel), db.RoleOperator, db.RoleAdmin))
		v.Method(http.MethodGet, "/jobs/{jobID}", auth.RequireRole(http.HandlerFunc(h.getJobDetails), db.RoleOperator, db.RoleAdmin))
		v.Method(http.MethodGet, "/jobs", auth.RequireRole(http.HandlerFunc(h.getJobs), db.RoleOperator, db.RoleAdmin))
		v.Method(http.MethodPatch, "/tasks/{jobID}/{taskName}", auth.RequireRole(http.HandlerFunc(h.updateTask), db.RoleNode, db.RoleAdmin))
	})

	return r
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

func validatePayload(v any) *httpx.HTTPError {
	if err := validate.Struct(v); err != nil {
		return httpx.BadRequest(err.Error())
	}
	return nil
}
