// Package api implements the HTTP surface of the catalog service.
//
// Routes:
//
//	GET    /health            → liveness and store reachability
//	GET    /perfumes          → list (?brand=, ?only_discounted=)
//	GET    /perfumes/{id}     → one record
//	POST   /perfumes          → upsert by url
//	PATCH  /perfumes/{id}     → partial update (url is immutable)
//	DELETE /perfumes/{id}     → delete
//	GET    /brands            → distinct brands
//	POST   /tasks/run         → start one crawl in the background
//	GET    /ws/perfumes       → live change feed (websocket)
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"scentwatch/catalog-service/internal/catalog"
	"scentwatch/catalog-service/internal/hub"
	"scentwatch/catalog-service/internal/model"
	"scentwatch/catalog-service/internal/store"
)

const (
	serviceName = "catalog-service"
	maxBodySize = 1 << 20
)

// Catalog is the set of business operations the API maps onto routes.
type Catalog interface {
	RunCrawl(ctx context.Context) (*catalog.CrawlReport, error)
	Upsert(ctx context.Context, p model.Perfume) (model.Perfume, error)
	Patch(ctx context.Context, id int64, patch catalog.PerfumePatch) (model.Perfume, error)
	Delete(ctx context.Context, id int64) (model.Perfume, error)
	Get(ctx context.Context, id int64) (model.Perfume, error)
	List(ctx context.Context, f store.Filter) ([]model.Perfume, error)
	Brands(ctx context.Context) ([]string, error)
}

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies.
type Handler struct {
	svc     Catalog
	viewers *hub.Hub
	db      Pinger
	version string
	log     *slog.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(svc Catalog, viewers *hub.Hub, db Pinger, version string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, viewers: viewers, db: db, version: version, log: log.With("component", "api")}
}

// Router returns the chi router with middleware and all routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withRequestID)
	r.Use(withLogging(h.log))

	r.Get("/health", h.health)
	r.Route("/perfumes", func(r chi.Router) {
		r.Get("/", h.listPerfumes)
		r.Post("/", h.createPerfume)
		r.Get("/{id}", h.getPerfume)
		r.Patch("/{id}", h.patchPerfume)
		r.Delete("/{id}", h.deletePerfume)
	})
	r.Get("/brands", h.listBrands)
	r.Post("/tasks/run", h.runCrawl)
	r.Get("/ws/perfumes", h.liveFeed)
	return r
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status":  "ok",
		"service": serviceName,
		"version": h.version,
		"store":   "ok",
	}
	code := http.StatusOK
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.log.Warn("health: store ping failed", "err", err)
			body["status"], body["store"] = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, body)
}

func (h *Handler) listPerfumes(w http.ResponseWriter, r *http.Request) {
	f := store.Filter{Brand: r.URL.Query().Get("brand")}
	if raw := r.URL.Query().Get("only_discounted"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			jsonError(w, "only_discounted must be a boolean", http.StatusBadRequest)
			return
		}
		f.OnlyDiscounted = v
	}

	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []model.Perfume{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getPerfume(w http.ResponseWriter, r *http.Request) {
	id, ok := perfumeID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) createPerfume(w http.ResponseWriter, r *http.Request) {
	var in model.Perfume
	if !decode(w, r, &in) {
		return
	}
	p, err := h.svc.Upsert(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) patchPerfume(w http.ResponseWriter, r *http.Request) {
	id, ok := perfumeID(w, r)
	if !ok {
		return
	}
	var patch catalog.PerfumePatch
	if !decode(w, r, &patch) {
		return
	}
	p, err := h.svc.Patch(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) deletePerfume(w http.ResponseWriter, r *http.Request) {
	id, ok := perfumeID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.svc.Brands(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if brands == nil {
		brands = []string{}
	}
	writeJSON(w, http.StatusOK, brands)
}

// runCrawl starts a crawl that outlives the request. A crawl already in
// progress makes this one wait its turn.
func (h *Handler) runCrawl(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if _, err := h.svc.RunCrawl(ctx); err != nil {
			h.log.Error("background crawl failed", "err", err, "request_id", RequestIDFromContext(ctx))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "crawl started"})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// fail maps a service error onto a status code.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *catalog.ValidationError
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		jsonError(w, "perfume not found", http.StatusNotFound)
	case errors.As(err, &verr):
		jsonError(w, verr.Msg, http.StatusBadRequest)
	default:
		h.log.Error("request failed", "path", r.URL.Path, "err", err, "request_id", RequestIDFromContext(r.Context()))
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func perfumeID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		jsonError(w, "id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
