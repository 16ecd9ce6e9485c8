package resolve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solaius/pathkeeper/pkg/pathdb"
)

func TestMatchResponseSlot(t *testing.T) {
	record := &pathdb.PathRecord{EntityType: "doc", EntityID: "d1", FullPath: "a", Version: 1}
	req := httptest.NewRequest(http.MethodGet, "/a", nil)
	m := NewMatch(req, Resolution{Kind: KindFound, Record: record, Entity: &doc{id: "d1", path: "a"}})

	require.Nil(t, m.Responder())

	first := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	second := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	m.Respond(first)
	m.Respond(second) // ignored: the slot is already claimed

	rec := httptest.NewRecorder()
	m.Responder().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
