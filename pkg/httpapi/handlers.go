package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/solaius/pathkeeper/pkg/entity"
	"github.com/solaius/pathkeeper/pkg/pathdb"
	"github.com/solaius/pathkeeper/pkg/pathsync"
	"github.com/solaius/pathkeeper/pkg/resolve"
)

// pathResponse is the JSON shape of one path version.
type pathResponse struct {
	EntityType string     `json:"entityType"`
	EntityID   string     `json:"entityId"`
	FullPath   string     `json:"fullPath"`
	Group      *string    `json:"group,omitempty"`
	Version    int        `json:"version"`
	State      string     `json:"state"`
	RetiredAt  *time.Time `json:"retiredAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func pathToResponse(p *pathdb.PathRecord) pathResponse {
	return pathResponse{
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		FullPath:   p.FullPath,
		Group:      p.Group,
		Version:    p.Version,
		State:      string(p.State),
		RetiredAt:  p.RetiredAt,
		CreatedAt:  p.CreatedAt,
	}
}

// ActivePathHandler handles GET /entities/{entityType}/{entityId}/path
func ActivePathHandler(engine *pathsync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityType := chi.URLParam(r, "entityType")
		entityID := chi.URLParam(r, "entityId")

		record, err := engine.ActivePathOrFail(entityType, entityID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, pathToResponse(record))
	}
}

// HistoryHandler handles GET /entities/{entityType}/{entityId}/history
// Query param includeRetired=true also returns retired versions.
func HistoryHandler(engine *pathsync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityType := chi.URLParam(r, "entityType")
		entityID := chi.URLParam(r, "entityId")
		includeRetired := r.URL.Query().Get("includeRetired") == "true"

		records, err := engine.History(r.Context(),
			entity.Ref{Type: entityType, ID: entityID}, includeRetired)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		versions := make([]pathResponse, len(records))
		for i := range records {
			versions[i] = pathToResponse(&records[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
	}
}

// SyncHandler handles POST /entities/{entityType}/{entityId}:sync
// Body (optional): {"slug": "...", "group": "...", "disableCascade": false}
func SyncHandler(engine *pathsync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityType := chi.URLParam(r, "entityType")
		entityID := chi.URLParam(r, "entityId")

		var req struct {
			Slug           *string `json:"slug"`
			Group          *string `json:"group"`
			DisableCascade bool    `json:"disableCascade"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
				return
			}
		}

		ent, err := engine.Registry().Load(r.Context(),
			entity.Ref{Type: entityType, ID: entityID})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if ent == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("entity %s:%s not found", entityType, entityID))
			return
		}

		event, err := engine.Sync(r.Context(), ent, pathsync.Options{
			Slug:           req.Slug,
			Group:          req.Group,
			DisableCascade: req.DisableCascade,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}

		resp := map[string]any{"changed": event != nil}
		if event != nil {
			resp["newPath"] = event.NewPath
			resp["version"] = event.Version
			if event.OldPath != nil {
				resp["oldPath"] = *event.OldPath
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SoftDeleteHandler handles POST /entities/{entityType}/{entityId}:softDelete
func SoftDeleteHandler(engine *pathsync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entity.Ref{
			Type: chi.URLParam(r, "entityType"),
			ID:   chi.URLParam(r, "entityId"),
		}
		if err := engine.SoftDelete(r.Context(), ref); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "retired"})
	}
}

// RestoreHandler handles POST /entities/{entityType}/{entityId}:restore
func RestoreHandler(engine *pathsync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entity.Ref{
			Type: chi.URLParam(r, "entityType"),
			ID:   chi.URLParam(r, "entityId"),
		}

		ent, err := engine.Registry().Load(r.Context(), ref)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if ent == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("entity %s not found", ref))
			return
		}

		event, err := engine.Restore(r.Context(), ent)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		resp := map[string]any{"status": "restored"}
		if event != nil {
			resp["path"] = event.NewPath
			resp["version"] = event.Version
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// PurgeHandler handles POST /entities/{entityType}/{entityId}:purge
func PurgeHandler(engine *pathsync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := entity.Ref{
			Type: chi.URLParam(r, "entityType"),
			ID:   chi.URLParam(r, "entityId"),
		}
		if err := engine.Purge(r.Context(), ref); err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
	}
}

// ResolveHandler handles GET /resolve?path=...
// Returns the full resolution outcome without issuing a redirect.
func ResolveHandler(resolver *resolve.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			writeError(w, http.StatusBadRequest, "path query parameter is required")
			return
		}

		res, err := resolver.Resolve(r.Context(), path)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		resp := map[string]any{"kind": string(res.Kind)}
		switch res.Kind {
		case resolve.KindFound:
			resp["path"] = pathToResponse(res.Record)
		case resolve.KindRedirect:
			resp["redirectTo"] = res.RedirectTo
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// RedirectHandler handles GET /redirect?path=...
// Returns the redirect target for a retired path, 404 when there is none.
func RedirectHandler(resolver *resolve.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			writeError(w, http.StatusBadRequest, "path query parameter is required")
			return
		}

		res, err := resolver.Resolve(r.Context(), path)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if res.Kind != resolve.KindRedirect {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no redirect for %q", path))
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"redirectTo": res.RedirectTo})
	}
}

// writeEngineError maps engine and registry errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pathsync.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pathsync.ErrSlugConflict), errors.Is(err, pathsync.ErrPathConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pathsync.ErrPathTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, entity.ErrNotRegistered):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
