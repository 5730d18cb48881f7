package contracthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/rolecounter/internal/contract"
	"github.com/odyssey-erp/rolecounter/internal/counter"
	"github.com/odyssey-erp/rolecounter/internal/platform/httpx"
	"github.com/odyssey-erp/rolecounter/internal/rbac"
	"github.com/odyssey-erp/rolecounter/internal/state"
)

const (
	maxArgsBytes = 64 << 10
	deployLimit  = 5
	deployWindow = time.Minute
)

// Service is the contract surface the handler drives.
type Service interface {
	Self() rbac.AccountID
	Deploy(ctx context.Context) (contract.Receipt, error)
	Call(ctx context.Context, caller rbac.AccountID, method string, args json.RawMessage) (contract.Receipt, error)
	View(ctx context.Context, method string, args json.RawMessage) (contract.Receipt, error)
}

// Handler exposes the contract over HTTP.
type Handler struct {
	logger  *slog.Logger
	service Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service Service, rbacMW rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers contract routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.Caller)
	r.Get("/methods", h.listMethods)
	r.Get("/view/{method}", h.view)
	r.Post("/call/{method}", h.call)
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(deployLimit, deployWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
		gr.Post("/deploy", h.deploy)
	})
}

func (h *Handler) listMethods(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, contract.Methods())
}

func (h *Handler) deploy(w http.ResponseWriter, r *http.Request) {
	caller, ok := rbac.CallerFromContext(r.Context())
	if !ok {
		h.respondError(w, r, contract.ErrMissingCaller)
		return
	}
	if caller != h.service.Self() {
		h.respondError(w, r, contract.ErrDeployForbidden)
		return
	}
	receipt, err := h.service.Deploy(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) call(w http.ResponseWriter, r *http.Request) {
	caller, ok := rbac.CallerFromContext(r.Context())
	if !ok {
		h.respondError(w, r, contract.ErrMissingCaller)
		return
	}
	args, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArgsBytes))
	if err != nil {
		h.respondError(w, r, fmt.Errorf("%w: %v", contract.ErrInvalidArgs, err))
		return
	}
	receipt, err := h.service.Call(r.Context(), caller, chi.URLParam(r, "method"), args)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	var args json.RawMessage
	if raw := r.URL.Query().Get("args"); raw != "" {
		args = json.RawMessage(raw)
	}
	receipt, err := h.service.View(r.Context(), chi.URLParam(r, "method"), args)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	classified, known := classify(err)
	if !known {
		h.logger.Error("contract request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, classified)
}

// classify tags contract errors with the HTTP sentinel they surface as. Unknown
// errors are returned unchanged and become 500s.
func classify(err error) (error, bool) {
	kind := kindOf(err)
	if kind == nil {
		return err, false
	}
	return httpx.Classify(kind, err), true
}

func kindOf(err error) error {
	switch {
	case errors.Is(err, counter.ErrPermissionDenied), errors.Is(err, contract.ErrDeployForbidden):
		return httpx.ErrForbidden
	case errors.Is(err, contract.ErrUnknownMethod):
		return httpx.ErrNotFound
	case errors.Is(err, contract.ErrInvalidArgs), errors.Is(err, contract.ErrNotView):
		return httpx.ErrValidation
	case errors.Is(err, contract.ErrMissingCaller):
		return httpx.ErrUnauthorized
	case errors.Is(err, contract.ErrNotDeployed),
		errors.Is(err, contract.ErrAlreadyDeployed),
		errors.Is(err, counter.ErrBootstrap),
		errors.Is(err, counter.ErrOverflow),
		errors.Is(err, state.ErrConflict):
		return httpx.ErrConflict
	default:
		return nil
	}
}
