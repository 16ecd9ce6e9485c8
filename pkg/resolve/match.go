package resolve

import (
	"net/http"

	"github.com/solaius/pathkeeper/pkg/entity"
	"github.com/solaius/pathkeeper/pkg/pathdb"
)

// Match carries one successfully resolved inbound request together with a
// mutable response slot. Registered match handlers inspect the entity and
// may claim the match by setting a responder; if the slot is still empty
// after every handler ran, the server answers not-found.
type Match struct {
	Request *http.Request
	Record  *pathdb.PathRecord
	Entity  entity.PathBuilder
	Group   *string

	responder http.Handler
}

// NewMatch builds a match event for a Found resolution.
func NewMatch(r *http.Request, res Resolution) *Match {
	return &Match{
		Request: r,
		Record:  res.Record,
		Entity:  res.Entity,
		Group:   res.Record.Group,
	}
}

// Respond claims the match. The first non-nil responder wins; later calls
// are ignored.
func (m *Match) Respond(h http.Handler) {
	if m.responder == nil && h != nil {
		m.responder = h
	}
}

// Responder returns the claimed responder, or nil if no handler answered.
func (m *Match) Responder() http.Handler { return m.responder }

// MatchHandler inspects a match and may claim it via Match.Respond.
type MatchHandler func(*Match)
