package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/solaius/pathkeeper/pkg/entity"
	"github.com/solaius/pathkeeper/pkg/pathsync"
	"github.com/solaius/pathkeeper/pkg/rebuild"
	"github.com/solaius/pathkeeper/pkg/resolve"
	"github.com/solaius/pathkeeper/pkg/slugify"
)

// page is a flat test entity whose path is its own slug.
type page struct {
	id   string
	slug string
}

func (p *page) EntityRef() entity.Ref {
	return entity.Ref{Type: "page", ID: p.id}
}

func (p *page) ComputePath() (string, error) {
	return slugify.Make(p.slug), nil
}

type fixture struct {
	router http.Handler
	server *Server
	engine *pathsync.Engine
	store  *rebuild.JobStore
	pages  map[string]*page
}

func newTestFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	pages := make(map[string]*page)
	registry := entity.NewRegistry()
	require.NoError(t, registry.Register("page", &page{}, func(_ context.Context, id string) (entity.PathBuilder, error) {
		p, ok := pages[id]
		if !ok {
			return nil, nil
		}
		return p, nil
	}))
	require.NoError(t, registry.RegisterEnumerator("page", func(_ context.Context, _ string, offset, limit int) ([]entity.PathBuilder, error) {
		all := make([]entity.PathBuilder, 0, len(pages))
		for _, p := range pages {
			all = append(all, p)
		}
		if offset >= len(all) {
			return nil, nil
		}
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		return all[offset:end], nil
	}))

	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := pathsync.NewEngine(db, registry, nil, discard)
	require.NoError(t, engine.SlugStore().AutoMigrate())
	require.NoError(t, engine.PathStore().AutoMigrate())

	resolver := resolve.NewResolver(engine.PathStore(), registry, nil, discard)
	engine.Notifier().Subscribe(resolver.HandleChange)

	jobStore := rebuild.NewJobStore(db)
	require.NoError(t, jobStore.AutoMigrate())

	cfg := DefaultServerConfig()
	cfg.RequestLogging = false
	server := NewServer(engine, resolver, jobStore, cfg, discard)
	server.RegisterMatchHandler(func(m *resolve.Match) {
		ref := m.Record.EntityType + "/" + m.Record.EntityID
		m.Respond(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, ref)
		}))
	})

	return &fixture{
		router: server.Router(),
		server: server,
		engine: engine,
		store:  jobStore,
		pages:  pages,
	}
}

func (f *fixture) savePage(t *testing.T, id, slug string) {
	t.Helper()
	p, ok := f.pages[id]
	if !ok {
		p = &page{id: id}
		f.pages[id] = p
	}
	p.slug = slug
	_, err := f.engine.Sync(context.Background(), p, pathsync.Options{Slug: &slug})
	require.NoError(t, err)
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestPublicActivePathServed(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "About Us")

	rec := f.get("/about-us")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page/p1", rec.Body.String())
}

func TestPublicUnknownPathIs404(t *testing.T) {
	f := newTestFixture(t)

	rec := f.get("/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicRetiredPathRedirectsWithQuery(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "old-name")
	f.savePage(t, "p1", "new-name")

	rec := f.get("/old-name?utm=tw")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/new-name?utm=tw", rec.Header().Get("Location"))
}

func TestPublicOverlongPathRejected(t *testing.T) {
	f := newTestFixture(t)

	rec := f.get("/" + strings.Repeat("a", 3000))
	assert.Equal(t, http.StatusRequestURITooLong, rec.Code)
}

func TestPublicNoMatchHandlerIs404(t *testing.T) {
	f := newTestFixture(t)
	f.server.matchHandlers = nil
	f.router = f.server.Router()
	f.savePage(t, "p1", "about")

	rec := f.get("/about")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminActivePath(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "docs")

	rec := f.get("/api/paths/v1alpha1/entities/page/p1/path")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp pathResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "docs", resp.FullPath)
	assert.Equal(t, 1, resp.Version)
}

func TestAdminActivePathMissing(t *testing.T) {
	f := newTestFixture(t)

	rec := f.get("/api/paths/v1alpha1/entities/page/nope/path")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminHistoryIncludeRetired(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "one")
	f.savePage(t, "p1", "two")

	rec := f.get("/api/paths/v1alpha1/entities/page/p1/history")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Versions []pathResponse `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Versions, 1)
	assert.Equal(t, "two", resp.Versions[0].FullPath)

	rec = f.get("/api/paths/v1alpha1/entities/page/p1/history?includeRetired=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Versions, 2)
	assert.Equal(t, "one", resp.Versions[0].FullPath)
}

func TestAdminSyncRenames(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "draft")
	f.pages["p1"].slug = "published"

	rec := f.post("/api/paths/v1alpha1/entities/page/p1:sync", `{"slug": "published"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["changed"])
	assert.Equal(t, "published", resp["newPath"])

	assert.Equal(t, http.StatusOK, f.get("/published").Code)
	assert.Equal(t, http.StatusMovedPermanently, f.get("/draft").Code)
}

func TestAdminSyncConflict(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "taken")
	f.savePage(t, "p2", "other")
	f.pages["p2"].slug = "taken"

	rec := f.post("/api/paths/v1alpha1/entities/page/p2:sync", `{"slug": "taken"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminSyncUnknownEntity(t *testing.T) {
	f := newTestFixture(t)

	rec := f.post("/api/paths/v1alpha1/entities/page/ghost:sync", `{"slug": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminSoftDeleteAndRestore(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "news")

	rec := f.post("/api/paths/v1alpha1/entities/page/p1:softDelete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, f.get("/news").Code)

	rec = f.post("/api/paths/v1alpha1/entities/page/p1:restore", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, f.get("/news").Code)
}

func TestAdminResolveEndpoint(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "alpha")
	f.savePage(t, "p1", "beta")

	rec := f.get("/api/paths/v1alpha1/resolve?path=beta")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "found", resp["kind"])

	rec = f.get("/api/paths/v1alpha1/resolve?path=alpha")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "redirect", resp["kind"])
	assert.Equal(t, "beta", resp["redirectTo"])
}

func TestAdminRedirectEndpoint(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "alpha")
	f.savePage(t, "p1", "beta")

	rec := f.get("/api/paths/v1alpha1/redirect?path=alpha")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "beta", resp["redirectTo"])

	// Active paths have no redirect.
	rec = f.get("/api/paths/v1alpha1/redirect?path=beta")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRebuildEnqueues(t *testing.T) {
	f := newTestFixture(t)

	rec := f.post("/api/paths/v1alpha1/rebuild", `{"entityType": "page"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.post("/api/paths/v1alpha1/rebuild", `{"entityType": "widget"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobAPIIsMounted(t *testing.T) {
	f := newTestFixture(t)

	rec := f.get("/api/jobs/v1alpha1/rebuild")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobs")
}

func TestHealthEndpoints(t *testing.T) {
	f := newTestFixture(t)

	assert.Equal(t, http.StatusOK, f.get("/healthz").Code)
	assert.Equal(t, http.StatusOK, f.get("/readyz").Code)
}

func TestPublicCachedRedirectDropsAfterSoftDelete(t *testing.T) {
	f := newTestFixture(t)
	f.savePage(t, "p1", "old-name")
	f.savePage(t, "p1", "new-name")

	// Prime the resolver cache with the redirect outcome.
	rec := f.get("/old-name")
	require.Equal(t, http.StatusMovedPermanently, rec.Code)

	rec = f.post("/api/paths/v1alpha1/entities/page/p1:softDelete", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// The removal invalidated the cache; the retired redirect no longer
	// answers for an entity with no active path.
	assert.Equal(t, http.StatusNotFound, f.get("/old-name").Code)
	assert.Equal(t, http.StatusNotFound, f.get("/new-name").Code)
}
