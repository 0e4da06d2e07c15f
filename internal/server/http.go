package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/joseph-ayodele/fieldcapture/internal/common"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// XLSXExporter renders a stored session as a workbook.
type XLSXExporter interface {
	ExportSessionXLSX(ctx context.Context, id string) ([]byte, error)
}

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

type httpAPI struct {
	store    SessionStore
	exporter XLSXExporter
	health   HealthFunc
	logger   *slog.Logger
}

// NewHTTPHandler returns the JSON read model router.
func NewHTTPHandler(store SessionStore, exporter XLSXExporter, health HealthFunc, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	api := &httpAPI{store: store, exporter: exporter, health: health, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", api.healthz).Methods(http.MethodGet)
	r.HandleFunc("/sessions", api.listSessions).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", api.withSessionID(api.getSession)).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", api.withSessionID(api.deleteSession)).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/export.xlsx", api.withSessionID(api.exportSession)).Methods(http.MethodGet)
	r.Use(api.requestID)
	return r
}

func (a *httpAPI) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = common.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *httpAPI) healthz(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(r.Context()); err != nil {
			a.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *httpAPI) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.store.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *httpAPI) getSession(w http.ResponseWriter, r *http.Request) {
	id := common.SessionIDFromContext(r.Context())
	sess, err := a.store.Get(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (a *httpAPI) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := common.SessionIDFromContext(r.Context())
	if err := a.store.Delete(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *httpAPI) exportSession(w http.ResponseWriter, r *http.Request) {
	id := common.SessionIDFromContext(r.Context())
	if a.exporter == nil {
		a.fail(w, r, common.ErrUnavailable)
		return
	}
	b, err := a.exporter.ExportSessionXLSX(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// withSessionID validates the {id} path variable and puts it on the request context.
func (a *httpAPI) withSessionID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := common.ValidateSessionID(id); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		next(w, r.WithContext(common.WithSessionID(r.Context(), id)))
	}
}

func (a *httpAPI) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, common.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}
	ctx := r.Context()
	a.logger.Warn("http request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", code,
		"request_id", common.RequestIDFromContext(ctx),
		"session_id", common.SessionIDFromContext(ctx),
		"error", err)
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
