package auth

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	sessionUserKey = "usuario_id"
	sessionRoleKey = "rol"
)

// SessionStore reads the principal that the back-office login stores in its
// cookie session.
type SessionStore struct {
	store sessions.Store
	name  string
}

func NewSessionStore(store sessions.Store, name string) *SessionStore {
	if name == "" {
		name = "session"
	}
	return &SessionStore{store: store, name: name}
}

// NewCookieStore builds the default store from the configured key.
func NewCookieStore(key string, secure bool) *sessions.CookieStore {
	cs := sessions.NewCookieStore([]byte(key))
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   8 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return cs
}

func (s *SessionStore) Principal(r *http.Request) (Principal, error) {
	sess, err := s.store.Get(r, s.name)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	rawID, _ := sess.Values[sessionUserKey].(string)
	rawRole, _ := sess.Values[sessionRoleKey].(string)
	if rawID == "" {
		return Principal{}, ErrUnauthenticated
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: invalid session user", ErrUnauthenticated)
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return Principal{ID: id, Role: role}, nil
}

// Save writes p into the session cookie.
func (s *SessionStore) Save(w http.ResponseWriter, r *http.Request, p Principal) error {
	sess, err := s.store.Get(r, s.name)
	if err != nil && sess == nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	sess.Values[sessionUserKey] = p.ID.String()
	sess.Values[sessionRoleKey] = string(p.Role)
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
