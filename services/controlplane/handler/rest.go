package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/skylinehq/skyline/internal/authz"
	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/orchestration"
	"github.com/skylinehq/skyline/internal/postgres"
	redisstore "github.com/skylinehq/skyline/internal/redis"
	"github.com/skylinehq/skyline/internal/taskstore"
	"github.com/skylinehq/skyline/pkg/telemetry"
)

// Caller identity headers, one value each except accounts and groups which
// are comma-separated.
const (
	headerUser     = "X-Skyline-User"
	headerGroups   = "X-Skyline-Groups"
	headerAccounts = "X-Skyline-Accounts"
)

// REST serves the submission and status APIs.
type REST struct {
	operations *orchestration.OperationsService
	store      taskstore.Store
	mirror     redisstore.TaskMirror
	archive    postgres.TaskArchive
	limiter    redisstore.RateLimiter // nil = disabled
	logger     *slog.Logger
}

// NewREST creates a new REST handler.
func NewREST(
	operations *orchestration.OperationsService,
	store taskstore.Store,
	mirror redisstore.TaskMirror,
	archive postgres.TaskArchive,
	limiter redisstore.RateLimiter,
	logger *slog.Logger,
) *REST {
	if logger == nil {
		logger = slog.Default()
	}
	return &REST{
		operations: operations,
		store:      store,
		mirror:     mirror,
		archive:    archive,
		limiter:    limiter,
		logger:     logger,
	}
}

// SubmitResponse is the 202 response body for POST /api/v1/ops.
type SubmitResponse struct {
	TaskID string `json:"task_id"`
}

// TaskResponse is the GET /api/v1/tasks/{id} response body.
type TaskResponse struct {
	TaskID      string               `json:"task_id"`
	State       string               `json:"state"`
	History     []domain.StatusEntry `json:"history"`
	Results     []any                `json:"results,omitempty"`
	Failure     *domain.Failure      `json:"failure,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// SubmitOperations handles POST /api/v1/ops. The body is an ordered JSON
// array of operation descriptions; caller identity arrives in headers. The
// task ID returns synchronously while the chain runs in the background.
func (h *REST) SubmitOperations(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("controlplane").Start(r.Context(), "controlplane.submit_operations")
	defer span.End()

	caller := callerFrom(r)
	if caller.Identity == "" {
		writeError(w, http.StatusUnauthorized, "header "+headerUser+" is required")
		return
	}
	span.SetAttributes(attribute.String("caller", caller.Identity))

	var descs []domain.Description
	if err := json.NewDecoder(r.Body).Decode(&descs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if h.limiter != nil {
		for _, desc := range descs {
			allowed, err := h.limiter.Allow(ctx, desc.Account())
			if err != nil {
				h.logger.Error("rate limiter error", slog.String("error", err.Error()))
				// Allow on limiter failure to avoid blocking submissions on Redis issues.
				break
			}
			if !allowed {
				telemetry.SubmissionsRateLimited.Inc()
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded for account "+desc.Account())
				return
			}
		}
	}

	taskID, err := h.operations.Submit(ctx, caller, descs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission rejected")
		h.writeSubmitError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitResponse{TaskID: taskID})
}

// GetTask handles GET /api/v1/tasks/{id}. Live tasks come from the
// in-memory store; evicted tasks fall back to the Redis mirror, then the
// archive.
func (h *REST) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required")
		return
	}
	ctx := r.Context()

	snap, err := h.lookup(ctx, taskID)
	if err != nil {
		var notFound *domain.TaskNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.logger.Error("task lookup failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to retrieve task")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TaskResponse{
		TaskID:      snap.ID,
		State:       string(snap.State),
		History:     snap.History,
		Results:     snap.Results,
		Failure:     snap.Failure,
		CreatedAt:   snap.CreatedAt,
		CompletedAt: snap.CompletedAt,
	})
}

func (h *REST) lookup(ctx context.Context, taskID string) (domain.TaskSnapshot, error) {
	if task, err := h.store.Get(taskID); err == nil {
		return task.Snapshot(), nil
	}
	if h.mirror != nil {
		if snap, err := h.mirror.Get(ctx, taskID); err == nil {
			return *snap, nil
		}
	}
	if h.archive != nil {
		snap, err := h.archive.Get(ctx, taskID)
		if err != nil {
			return domain.TaskSnapshot{}, err
		}
		return *snap, nil
	}
	return domain.TaskSnapshot{}, &domain.TaskNotFoundError{TaskID: taskID}
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz — checks Redis connectivity.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.mirror != nil {
		if _, err := h.mirror.Get(ctx, "__readyz__"); err != nil {
			var notFound *domain.TaskNotFoundError
			if !errors.As(err, &notFound) {
				writeError(w, http.StatusServiceUnavailable, "redis not ready")
				return
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (h *REST) writeSubmitError(w http.ResponseWriter, err error) {
	var (
		unauthorized *domain.UnauthorizedError
		invalidDesc  *domain.InvalidDescriptionError
		unsupported  *domain.UnsupportedOperationError
		noAccount    *domain.AccountNotFoundError
	)
	switch {
	case errors.As(err, &unauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &invalidDesc):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &unsupported):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &noAccount):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("submission failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "submission failed")
	}
}

func callerFrom(r *http.Request) authz.Caller {
	identity := r.Header.Get(headerUser)
	caller := authz.Caller{
		Identity:   identity,
		Principals: []string{identity},
	}
	if groups := r.Header.Get(headerGroups); groups != "" {
		for _, g := range strings.Split(groups, ",") {
			if g = strings.TrimSpace(g); g != "" {
				caller.Principals = append(caller.Principals, g)
			}
		}
	}
	if accounts := r.Header.Get(headerAccounts); accounts != "" {
		for _, a := range strings.Split(accounts, ",") {
			if a = strings.TrimSpace(a); a != "" {
				caller.Accounts = append(caller.Accounts, a)
			}
		}
	}
	return caller
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
