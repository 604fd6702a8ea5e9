// Package admit implements the single entry point bridging an
// already-upgraded transport into a registered Connection: cookie
// parsing, session/user/note/permission resolution, hub acquisition, and
// connection construction, grounded on this codebase's gin-handler
// upgrade-and-register pattern but generalized from an inline
// upgrade+register into an explicit resolution chain where any step's
// failure closes the transport without ever leaking a hub.
package admit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/notehub/collab/internal/config"
	"github.com/notehub/collab/internal/errors"
	"github.com/notehub/collab/internal/models"
	"github.com/notehub/collab/internal/notesvc"
	"github.com/notehub/collab/internal/realtime/conn"
	"github.com/notehub/collab/internal/realtime/registry"
	"github.com/notehub/collab/internal/session"
	"github.com/notehub/collab/internal/usersvc"
	"github.com/notehub/collab/pkg/metrics"
)

// notePathPattern matches the fixed realtime upgrade path and captures
// the note id/alias query parameter.
var notePathPattern = regexp.MustCompile(`^/realtime/\?noteId=(.+)$`)

// ExtractNoteID returns the note id/alias captured from a request's
// RequestURI, or an error if it doesn't match the fixed upgrade path.
func ExtractNoteID(requestURI string) (string, error) {
	m := notePathPattern.FindStringSubmatch(requestURI)
	if m == nil {
		return "", fmt.Errorf("admit: path %q does not match /realtime/?noteId=...", requestURI)
	}
	return m[1], nil
}

// Transport is the subset of conn.Transport plus an OPEN check the
// admitter needs to decide whether it's still safe to finish
// registration after its own suspension points.
type Transport interface {
	conn.Transport
	IsOpen() bool
}

// Admitter resolves an incoming upgraded transport into a registered
// connection.
type Admitter struct {
	sessions    session.Service
	users       usersvc.Service
	notes       notesvc.Service
	permissions notesvc.PermissionsService
	registry    *registry.Registry
	logger      *zap.Logger
	cfg         *config.Config
	metrics     *metrics.Metrics
}

// New constructs an Admitter from its collaborators. metrics may be nil,
// in which case admission counters are simply not recorded.
func New(
	sessions session.Service,
	users usersvc.Service,
	notes notesvc.Service,
	permissions notesvc.PermissionsService,
	reg *registry.Registry,
	logger *zap.Logger,
	cfg *config.Config,
	m *metrics.Metrics,
) *Admitter {
	return &Admitter{
		sessions:    sessions,
		users:       users,
		notes:       notes,
		permissions: permissions,
		registry:    reg,
		logger:      logger,
		cfg:         cfg,
		metrics:     m,
	}
}

// Admit runs the full resolution chain for one incoming upgraded
// transport and, on success, returns the registered, started connection.
// Any failure closes the transport and returns a non-nil error. Once the
// connection has joined a hub (h.Connect succeeded), every later failure
// path removes it again via h.Remove rather than just erroring out, so a
// hub created solely for this admission always ends up back at zero
// connections and tears itself down instead of leaking in the registry.
func (a *Admitter) Admit(ctx context.Context, transport Transport, r *http.Request) (*conn.Connection, error) {
	sessionID, err := a.resolveSessionID(r)
	if err != nil {
		a.deny(transport, "session", err)
		return nil, err
	}

	username, err := a.sessions.UsernameFromSessionID(ctx, sessionID)
	if err != nil {
		a.deny(transport, "session", err)
		return nil, err
	}

	user, err := a.users.ByUsername(username)
	if err != nil {
		a.deny(transport, "user", err)
		return nil, err
	}

	noteIDOrAlias, err := ExtractNoteID(r.URL.RequestURI())
	if err != nil {
		a.deny(transport, "path", err)
		return nil, err
	}

	note, err := a.notes.ByIDOrAlias(noteIDOrAlias)
	if err != nil {
		a.deny(transport, "note", err)
		return nil, err
	}

	if !a.permissions.MayRead(user, note) {
		err := fmt.Errorf("admit: user %s may not read note %s", user.Username, note.ID)
		a.deny(transport, "permission", err)
		return nil, err
	}

	h, err := a.registry.GetOrCreate(note.ID, func() (string, error) {
		rev, err := a.notes.GetLatestRevision(note)
		if err != nil {
			return "", fmt.Errorf("admit: loader fault: %w", err)
		}
		return rev.Content, nil
	})
	if err != nil {
		a.deny(transport, "loader", err)
		return nil, err
	}

	c := conn.New(transport, user, h, a.logger, a.cfg.Realtime.KeepAliveInterval)
	if !h.Connect(c) {
		// The hub started closing between GetOrCreate and Connect; the
		// registry will already be coalescing a fresh one for the next
		// admission, so this connection simply never joins and the
		// transport is released.
		transport.Close()
		return nil, fmt.Errorf("admit: hub for note %s is closing", note.ID)
	}

	if !transport.IsOpen() {
		// The peer vanished during this function's own suspension points.
		// Route the abandoned registration through Remove rather than just
		// returning, so the hub's own empty-connection-set check fires: a
		// hub GetOrCreate just created for this admission alone destroys
		// itself instead of sitting registered forever with no members.
		h.Remove(c)
		return nil, fmt.Errorf("admit: transport closed before registration")
	}

	c.Start()
	c.SendInitial()
	if a.metrics != nil {
		a.metrics.ConnectionAdmitted()
	}
	return c, nil
}

func (a *Admitter) resolveSessionID(r *http.Request) (string, error) {
	if r.Header.Get("Cookie") == "" {
		return "", fmt.Errorf("admit: missing cookie header")
	}

	cookie, err := r.Cookie(a.cfg.Session.CookieName)
	if err != nil {
		return "", fmt.Errorf("admit: missing session cookie %q", a.cfg.Session.CookieName)
	}

	value, err := url.PathUnescape(cookie.Value)
	if err != nil {
		value = cookie.Value
	}
	if value == "" {
		return "", fmt.Errorf("admit: empty session cookie value")
	}

	return session.ParseCookie(value, a.cfg.Session.Secret)
}

func (a *Admitter) deny(transport Transport, reason string, cause error) {
	a.logger.Error("realtime admission denied", zap.Error(errors.NewAdmissionDeniedError(cause.Error())))
	if a.metrics != nil {
		a.metrics.ConnectionDenied(reason)
	}
	transport.Close()
}

// DefaultTimeout bounds the admitter's own resolution chain, covering the
// session/user/note/permission lookups' suspension points.
const DefaultTimeout = 10 * time.Second
