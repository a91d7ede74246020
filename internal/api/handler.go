// Package api exposes the catalog, checkout, identity and branch components
// as a JSON REST API.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"retailpos/m/internal/apperr"
	"retailpos/m/internal/branch"
	"retailpos/m/internal/catalog"
	"retailpos/m/internal/identity"
	"retailpos/m/internal/metrics"
	"retailpos/m/internal/sales"
)

// maxBodyBytes caps request bodies; carts are the largest payload.
const maxBodyBytes = 1 << 20

// Deps are the components the HTTP layer serves.
type Deps struct {
	Catalog        *catalog.Store
	Sales          *sales.Recorder
	Identity       *identity.Service
	Branches       *branch.Directory
	Logger         *slog.Logger
	AllowedOrigins []string
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	catalog  *catalog.Store
	sales    *sales.Recorder
	identity *identity.Service
	branches *branch.Directory
	logger   *slog.Logger
	origins  []string
}

// New constructs a Handler.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		catalog:  d.Catalog,
		sales:    d.Sales,
		identity: d.Identity,
		branches: d.Branches,
		logger:   logger,
		origins:  d.AllowedOrigins,
	}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.useMiddleware(r)

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/register", h.register)
	r.Post("/login", h.login)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/products", func(r chi.Router) {
			r.With(requirePermission(PermCatalogRead)).Get("/", h.listProducts)
			r.With(requirePermission(PermCatalogRead)).Get("/search/{name}", h.searchProducts)
			r.With(requirePermission(PermCatalogRead)).Get("/barcode/{code}", h.getProductByBarcode)
			r.With(requirePermission(PermCatalogRead)).Get("/{id}", h.getProduct)
			r.With(requirePermission(PermCatalogWrite)).Post("/", h.createProduct)
			r.With(requirePermission(PermCatalogWrite)).Put("/{id}", h.updateProduct)
			r.With(requirePermission(PermCatalogWrite)).Delete("/{id}", h.deleteProduct)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.With(requirePermission(PermSalesCreate)).Post("/", h.createSale)
			r.With(requirePermission(PermSalesRead)).Get("/", h.listSales)
			r.With(requirePermission(PermSalesRead)).Get("/summary", h.salesSummary)
			r.With(requirePermission(PermSalesRead)).Get("/{id}", h.getSale)
		})

		pr.With(requirePermission(PermUsersRead)).Get("/users", h.listUsers)

		pr.Route("/branches", func(r chi.Router) {
			r.With(requirePermission(PermBranchesRead)).Get("/", h.listBranches)
			r.With(requirePermission(PermBranchesRead)).Get("/{id}", h.getBranch)
			r.With(requirePermission(PermBranchesWrite)).Post("/", h.createBranch)
			r.With(requirePermission(PermBranchesWrite)).Delete("/{id}", h.deleteBranch)
		})
	})

	return r
}

// useMiddleware installs the stack shared by every route. Metrics sit
// outside Recoverer so requests that panic are counted as 500s.
func (h *Handler) useMiddleware(r chi.Router) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(middleware.Recoverer)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger writes one access log line per request, tagged with the
// request id set by middleware.RequestID.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(r.Context(), level, "http request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Helpers

type errorResponse struct {
	Error      string      `json:"error"`
	Kind       apperr.Kind `json:"kind"`
	ProductIDs []int64     `json:"productIds,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindInsufficientStock:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Causes of storage and internal
// failures are logged, never returned.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("internal server error", err)
	}
	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("kind", string(e.Kind)),
			slog.String("error", err.Error()),
		)
	}
	respondJSON(w, status, errorResponse{Error: e.Message, Kind: e.Kind, ProductIDs: e.ProductIDs})
}

func respondError(w http.ResponseWriter, status int, kind apperr.Kind, message string) {
	respondJSON(w, status, errorResponse{Error: message, Kind: kind})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	if decoder.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s %q", name, raw)
	}
	return id, nil
}

func dateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apperr.Validation("%s must be in YYYY-MM-DD format", name)
	}
	return &t, nil
}

// salesFilter reads from/to as whole days: to includes the named day.
func salesFilter(r *http.Request) (sales.Filter, error) {
	from, err := dateParam(r, "from")
	if err != nil {
		return sales.Filter{}, err
	}
	to, err := dateParam(r, "to")
	if err != nil {
		return sales.Filter{}, err
	}
	if to != nil {
		next := to.AddDate(0, 0, 1)
		to = &next
	}
	if from != nil && to != nil && !from.Before(*to) {
		return sales.Filter{}, apperr.Validation("from must not be after to")
	}
	return sales.Filter{From: from, To: to}, nil
}
