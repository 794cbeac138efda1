package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
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

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeMirror struct {
	snaps  map[string]domain.TaskSnapshot
	getErr error
}

func (m *fakeMirror) Put(_ context.Context, snap domain.TaskSnapshot) error {
	if m.snaps == nil {
		m.snaps = make(map[string]domain.TaskSnapshot)
	}
	m.snaps[snap.ID] = snap
	return nil
}

func (m *fakeMirror) Get(_ context.Context, taskID string) (*domain.TaskSnapshot, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	snap, ok := m.snaps[taskID]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: taskID}
	}
	return &snap, nil
}

var _ redisstore.TaskMirror = (*fakeMirror)(nil)

type fakeArchive struct {
	snaps map[string]domain.TaskSnapshot
}

func (a *fakeArchive) Insert(_ context.Context, snap domain.TaskSnapshot) error {
	if a.snaps == nil {
		a.snaps = make(map[string]domain.TaskSnapshot)
	}
	a.snaps[snap.ID] = snap
	return nil
}

func (a *fakeArchive) Get(_ context.Context, id string) (*domain.TaskSnapshot, error) {
	snap, ok := a.snaps[id]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return &snap, nil
}

var _ postgres.TaskArchive = (*fakeArchive)(nil)

type fakeLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (l *fakeLimiter) Allow(context.Context, string) (bool, error) {
	l.calls++
	return l.allowed, l.err
}

func (l *fakeLimiter) Limit() int { return 1 }

var _ redisstore.RateLimiter = (*fakeLimiter)(nil)

type denyAuthorizer struct{}

func (denyAuthorizer) Name() string { return "deny-everything" }

func (denyAuthorizer) Authorize(authz.Caller, domain.Description) error {
	return errors.New("no submissions today")
}

// ── fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	router  chi.Router
	store   taskstore.Store
	mirror  *fakeMirror
	archive *fakeArchive
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	gate    *authz.Gate
	limiter redisstore.RateLimiter
}

func withGate(g *authz.Gate) fixtureOption {
	return func(c *fixtureConfig) { c.gate = g }
}

func withLimiter(l redisstore.RateLimiter) fixtureOption {
	return func(c *fixtureConfig) { c.limiter = l }
}

func newHandlerFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := &fixtureConfig{gate: authz.NewGate(nil, nil, nil)}
	for _, opt := range opts {
		opt(cfg)
	}

	reg := registry.NewRegistry()
	require.NoError(t, noop.Register(reg))

	store := taskstore.NewStore(nil)
	processor := orchestration.NewProcessor(store)
	svc := orchestration.NewOperationsService(reg, cfg.gate, nil, processor, nil)

	mirror := &fakeMirror{}
	archive := &fakeArchive{}
	rest := handler.NewREST(svc, store, mirror, archive, cfg.limiter, nil)

	r := chi.NewRouter()
	r.Get("/healthz", rest.Healthz)
	r.Get("/readyz", rest.Readyz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ops", rest.SubmitOperations)
		r.Get("/tasks/{id}", rest.GetTask)
	})

	return &fixture{router: r, store: store, mirror: mirror, archive: archive}
}

func (f *fixture) submit(t *testing.T, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ops", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) getTask(t *testing.T, id string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+id, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func asUser(user string) map[string]string {
	return map[string]string{"X-Skyline-User": user}
}

const noopChain = `[{"provider":"noop","type":"noop","account":"local","message":"hello"}]`

// ── submission ───────────────────────────────────────────────────────────────

func TestSubmitOperations_Accepted(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.submit(t, noopChain, asUser("alice"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp handler.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TaskID)

	// The chain runs in the background; poll until terminal.
	require.Eventually(t, func() bool {
		task, err := f.store.Get(resp.TaskID)
		if err != nil {
			return false
		}
		return task.Snapshot().State.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)

	task, err := f.store.Get(resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, task.Snapshot().State)
}

func TestSubmitOperations_MissingUserHeader(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.submit(t, noopChain, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-Skyline-User")
}

func TestSubmitOperations_MalformedBody(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.submit(t, `{"not":"an array"}`, asUser("alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOperations_RejectedChainIsForbidden(t *testing.T) {
	gate := authz.NewGate([]authz.DescriptionAuthorizer{denyAuthorizer{}}, nil, nil)
	f := newHandlerFixture(t, withGate(gate))

	rec := f.submit(t, noopChain, asUser("alice"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "deny-everything")
}

func TestSubmitOperations_UnknownOperationIsBadRequest(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.submit(t, `[{"provider":"noop","type":"launchRocket","account":"local"}]`, asUser("alice"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "launchRocket")
}

func TestSubmitOperations_RateLimited(t *testing.T) {
	limiter := &fakeLimiter{allowed: false}
	f := newHandlerFixture(t, withLimiter(limiter))

	rec := f.submit(t, noopChain, asUser("alice"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "local")
	assert.Equal(t, 1, limiter.calls)
}

func TestSubmitOperations_LimiterFailureDoesNotBlock(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	f := newHandlerFixture(t, withLimiter(limiter))

	rec := f.submit(t, noopChain, asUser("alice"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

// ── status reads ─────────────────────────────────────────────────────────────

func TestGetTask_FromLiveStore(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.submit(t, noopChain, asUser("alice"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp handler.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Eventually(t, func() bool {
		task, err := f.store.Get(resp.TaskID)
		if err != nil {
			return false
		}
		return task.Snapshot().State.IsTerminal()
	}, 2*time.Second, 5*time.Millisecond)

	got := f.getTask(t, resp.TaskID)
	require.Equal(t, http.StatusOK, got.Code)

	var body handler.TaskResponse
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &body))
	assert.Equal(t, resp.TaskID, body.TaskID)
	assert.Equal(t, string(domain.StateCompleted), body.State)
	require.NotEmpty(t, body.History)
	assert.Equal(t, "hello", body.History[0].Message)
}

func TestGetTask_FallsBackToMirror(t *testing.T) {
	f := newHandlerFixture(t)

	now := time.Now().UTC()
	require.NoError(t, f.mirror.Put(context.Background(), domain.TaskSnapshot{
		ID:          "t-evicted",
		State:       domain.StateCompleted,
		CreatedAt:   now,
		CompletedAt: &now,
	}))

	rec := f.getTask(t, "t-evicted")
	require.Equal(t, http.StatusOK, rec.Code)

	var body handler.TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "t-evicted", body.TaskID)
}

func TestGetTask_FallsBackToArchive(t *testing.T) {
	f := newHandlerFixture(t)

	require.NoError(t, f.archive.Insert(context.Background(), domain.TaskSnapshot{
		ID:        "t-archived",
		State:     domain.StateFailed,
		CreatedAt: time.Now().UTC(),
	}))

	rec := f.getTask(t, "t-archived")
	require.Equal(t, http.StatusOK, rec.Code)

	var body handler.TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(domain.StateFailed), body.State)
}

func TestGetTask_Unknown(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.getTask(t, "t-ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ── probes ───────────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz_ReadyWhenMirrorMissesCleanly(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_UnavailableOnMirrorError(t *testing.T) {
	f := newHandlerFixture(t)
	f.mirror.getErr = errors.New("connection refused")

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis not ready")
}
