//go:build integration

// Package integration contains tests that require real infrastructure
// (Redis, PostgreSQL, Kafka) provided by testcontainers-go.
//
// Run with: go test -tags=integration -v ./tests/integration/
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylinehq/skyline/internal/authz"
	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/orchestration"
	"github.com/skylinehq/skyline/internal/postgres"
	"github.com/skylinehq/skyline/internal/provider/noop"
	redisstore "github.com/skylinehq/skyline/internal/redis"
	"github.com/skylinehq/skyline/internal/registry"
	"github.com/skylinehq/skyline/internal/taskstore"
	"github.com/skylinehq/skyline/services/controlplane/handler"
)

// TestE2E_SubmissionToArchivedStatusRead exercises the whole submission
// pipeline against real infrastructure: REST submit → chain execution →
// Redis mirror + Postgres archive → eviction → status read falling back
// through the mirror and the archive.
func TestE2E_SubmissionToArchivedStatusRead(t *testing.T) {
	ctx := context.Background()

	redisClient := newRedisClient(t)
	pool, err := pgxpool.New(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE saga_events, task_archive") //nolint:errcheck
		pool.Close()
	})

	mirror := redisstore.NewTaskMirror(redisClient)
	archive := postgres.NewTaskArchive(pool)

	reg := registry.NewRegistry()
	require.NoError(t, noop.Register(reg))

	store := taskstore.NewStore(nil)
	processor := orchestration.NewProcessor(store, orchestration.WithHooks(
		redisstore.NewMirrorHook(mirror),
		postgres.NewArchiveHook(archive),
	))
	svc := orchestration.NewOperationsService(reg, authz.NewGate(nil, nil, nil), nil, processor, nil)

	rest := handler.NewREST(svc, store, mirror, archive, nil, nil)
	router := chi.NewRouter()
	router.Post("/api/v1/ops", rest.SubmitOperations)
	router.Get("/api/v1/tasks/{id}", rest.GetTask)

	// ── Submit a two-operation chain ─────────────────────────────────────────
	body := `[
		{"provider":"noop","type":"noop","account":"local","message":"step one"},
		{"provider":"noop","type":"noop","account":"local","message":"step two"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ops", strings.NewReader(body))
	req.Header.Set("X-Skyline-User", "e2e")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted handler.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.TaskID)

	// ── Wait for the chain to finish ─────────────────────────────────────────
	require.Eventually(t, func() bool {
		task, err := store.Get(submitted.TaskID)
		if err != nil {
			return false
		}
		return task.Snapshot().State.IsTerminal()
	}, 10*time.Second, 20*time.Millisecond)

	// ── The hooks mirrored and archived the terminal snapshot ────────────────
	require.Eventually(t, func() bool {
		snap, err := mirror.Get(ctx, submitted.TaskID)
		return err == nil && snap.State == domain.StateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		snap, err := archive.Get(ctx, submitted.TaskID)
		return err == nil && snap.State == domain.StateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	// ── Evict from memory; reads fall through to the mirror ──────────────────
	store.Evict(submitted.TaskID)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+submitted.TaskID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status handler.TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, submitted.TaskID, status.TaskID)
	assert.Equal(t, string(domain.StateCompleted), status.State)
	require.Len(t, status.History, 2)
	assert.Equal(t, "step one", status.History[0].Message)
	assert.Equal(t, "step two", status.History[1].Message)

	// ── Wipe the mirror too; the archive still serves the read ───────────────
	require.NoError(t, redisClient.FlushDB(ctx).Err())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+submitted.TaskID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, string(domain.StateCompleted), status.State)
}
