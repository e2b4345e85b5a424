package store

import (
	"context"

	"github.com/livereview/lrtool/internal/providers/gitea"
)

const giteaSessionKey = "gitea/session"

// SessionRecorder adapts a Store to the Gitea session persistence
// surface.
type SessionRecorder struct {
	store Store
}

var _ gitea.SessionStore = (*SessionRecorder)(nil)

// NewSessionRecorder wraps a store for Gitea session persistence.
func NewSessionRecorder(s Store) *SessionRecorder {
	return &SessionRecorder{store: s}
}

// SaveSession persists the logged-in session state.
func (r *SessionRecorder) SaveSession(ctx context.Context, state gitea.SessionState) error {
	return r.store.Put(ctx, giteaSessionKey, state)
}

// LoadSession returns the last persisted session state, if any.
func (r *SessionRecorder) LoadSession(ctx context.Context) (gitea.SessionState, bool, error) {
	var state gitea.SessionState
	found, err := r.store.Get(ctx, giteaSessionKey, &state)
	return state, found, err
}
