package authsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shootbase/authsession/identity"
	"github.com/shootbase/authsession/store"
	"github.com/shootbase/authsession/token"
)

// Reserved storage keys. The manager is the sole writer of this set; the
// two legacy token keys are read-compatible only.
const (
	keyUser              = "user"
	keyOriginalUser      = "originalUser"
	keyAuthToken         = "authToken"
	keyLegacyToken       = "token"
	keyLegacyAccessToken = "access_token"
	keyShootCache        = "shoots"
)

// IdentityClient fetches the canonical profile for a bearer token's holder.
// [identity.Client] is the production implementation.
type IdentityClient interface {
	FetchProfile(ctx context.Context, bearerToken string) (*identity.Profile, error)
}

// Manager owns the authenticated-identity state machine: current user,
// role, derived session bundle, and the impersonation flag. One Manager
// instance is shared per running application.
//
// All exported methods are safe for concurrent use. Precondition-violating
// calls (Impersonate with no current user, StopImpersonating while not
// impersonating) are silent no-ops so UI code may call them speculatively.
type Manager struct {
	config   Config
	store    store.Store
	issuer   *token.Issuer
	identity IdentityClient
	audit    *auditDispatcher
	metrics  *Metrics
	logger   zerolog.Logger

	mu            sync.Mutex
	user          *User
	role          Role
	session       *Session
	originalUser  *User
	impersonating bool
	loading       bool
	bearerToken   string
	epoch         uint64
	refreshCancel context.CancelFunc
	subscribers   map[int]chan State
	nextSubID     int
	started       bool
	closed        bool
}

// Start performs the startup initialization: restore a durable
// impersonation marker, adopt the cached user and bearer token
// optimistically, and kick off the background identity refresh. The
// refresh is best-effort reconciliation; Start never waits for it.
//
// Corrupted cached state is recovered by clearing all reserved keys and
// remaining unauthenticated; it is not returned as an error. Start is
// idempotent after the first call.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.started {
		return nil
	}
	m.started = true

	// A persisted original user means the page reloaded mid-impersonation.
	rawOrig, origErr := m.store.Get(ctx, keyOriginalUser)
	switch {
	case origErr == nil:
		var orig User
		if jsonErr := json.Unmarshal([]byte(rawOrig), &orig); jsonErr != nil {
			m.recoverCorruptLocked(ctx, keyOriginalUser, jsonErr)
			return nil
		}
		m.originalUser = &orig
		m.impersonating = true
	case errors.Is(origErr, store.ErrNotFound):
	default:
		return fmt.Errorf("read original user: %w", origErr)
	}

	rawUser, userErr := m.store.Get(ctx, keyUser)
	if userErr != nil && !errors.Is(userErr, store.ErrNotFound) {
		return fmt.Errorf("read cached user: %w", userErr)
	}
	bearer := m.loadBearerToken(ctx)

	if errors.Is(userErr, store.ErrNotFound) || bearer == "" {
		m.clearAuthLocked(ctx)
		m.loading = false
		m.notifyLocked()
		return nil
	}

	var u User
	if jsonErr := json.Unmarshal([]byte(rawUser), &u); jsonErr != nil {
		m.recoverCorruptLocked(ctx, keyUser, jsonErr)
		return nil
	}

	u.Role = NormalizeRole(string(u.Role))
	m.user = &u
	m.role = u.Role
	m.bearerToken = bearer
	m.loading = false
	m.rebuildSessionLocked()
	m.notifyLocked()
	m.logger.Debug().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("adopted cached session")

	if m.identity != nil {
		rctx, cancel := context.WithCancel(ctx)
		m.refreshCancel = cancel
		go m.runRefresh(rctx, bearer, m.epoch, m.impersonating)
	}

	return nil
}

// Snapshot returns a deep copy of the observable state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Epoch returns the current value of the identity transition counter. It
// increments exactly once per Impersonate or StopImpersonating call.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Subscribe registers a change-notification channel with the given buffer
// capacity. The current state is delivered immediately; later states are
// sent without blocking, dropping when the buffer is full. The returned id
// is passed to [Manager.Unsubscribe]. After Close, the returned channel is
// already closed and the id refers to no subscription.
func (m *Manager) Subscribe(buffer int) (int, <-chan State) {
	if buffer <= 0 {
		buffer = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		ch := make(chan State)
		close(ch)
		return -1, ch
	}

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan State, buffer)
	m.subscribers[id] = ch
	ch <- m.snapshotLocked()
	return id, ch
}

// Unsubscribe removes and closes a subscription channel. Unknown ids are
// ignored.
func (m *Manager) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.subscribers[id]
	if !ok {
		return
	}
	delete(m.subscribers, id)
	close(ch)
}

// CachedUserID reads the persisted user record and returns its id, or the
// empty string when no record is cached. It exists so that other components
// never touch the reserved storage keys directly.
func (m *Manager) CachedUserID(ctx context.Context) (string, error) {
	raw, err := m.store.Get(ctx, keyUser)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cached user: %w", err)
	}

	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return "", fmt.Errorf("decode cached user: %w", err)
	}
	return u.ID, nil
}

// MetricsSnapshot returns a point-in-time copy of the in-process counters.
func (m *Manager) MetricsSnapshot() map[MetricID]uint64 {
	return m.metrics.Snapshot()
}

// AuditDropped reports how many audit events the dispatcher discarded.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// Close cancels any in-flight refresh, closes all subscription channels,
// and drains the audit dispatcher. The manager is unusable afterwards.
func (m *Manager) Close() {
	if m == nil {
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelRefreshLocked()
	for id, ch := range m.subscribers {
		delete(m.subscribers, id)
		close(ch)
	}
	m.mu.Unlock()

	m.audit.Close()
}

func (m *Manager) snapshotLocked() State {
	return State{
		User:          m.user.Clone(),
		Role:          m.role,
		Session:       m.session.clone(),
		OriginalUser:  m.originalUser.Clone(),
		Authenticated: m.user != nil,
		Loading:       m.loading,
		Impersonating: m.impersonating,
	}
}

func (m *Manager) notifyLocked() {
	st := m.snapshotLocked()
	for _, ch := range m.subscribers {
		select {
		case ch <- st:
		default:
			m.metrics.Inc(MetricNotifyDropped)
		}
	}
}

func (m *Manager) rebuildSessionLocked() {
	if m.user == nil {
		m.session = nil
		return
	}

	cu := m.user.Clone()
	bundle, err := m.issuer.Issue(token.UserClaims{
		ID:        cu.ID,
		Email:     cu.Email,
		Role:      string(m.role),
		Metadata:  cu.Metadata,
		CreatedAt: cu.CreatedAt,
	})
	if err != nil {
		m.logger.Error().Err(err).Msg("session bundle issuance failed")
		m.session = nil
		return
	}

	m.session = &Session{
		AccessToken: bundle.AccessToken,
		TokenType:   bundle.TokenType,
		IssuedAt:    bundle.IssuedAt,
		ExpiresAt:   bundle.ExpiresAt,
		User: SessionUser{
			ID:        cu.ID,
			Email:     cu.Email,
			Role:      m.role,
			Metadata:  cu.Metadata,
			CreatedAt: cu.CreatedAt,
		},
	}
}

func (m *Manager) persistUser(ctx context.Context, u *User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := m.store.Set(ctx, keyUser, string(raw)); err != nil {
		return fmt.Errorf("persist user: %w", err)
	}
	return nil
}

func (m *Manager) loadBearerToken(ctx context.Context) string {
	for _, key := range []string{keyAuthToken, keyLegacyToken, keyLegacyAccessToken} {
		tok, err := m.store.Get(ctx, key)
		if err == nil && tok != "" {
			return tok
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn().Err(err).Str("key", key).Msg("bearer token read failed")
		}
	}
	return ""
}

func (m *Manager) clearAuthLocked(ctx context.Context) {
	m.cancelRefreshLocked()
	err := m.store.Delete(ctx,
		keyUser, keyOriginalUser,
		keyAuthToken, keyLegacyToken, keyLegacyAccessToken,
		keyShootCache,
	)
	if err != nil {
		m.logger.Warn().Err(err).Msg("clearing reserved auth keys failed")
	}
	m.user = nil
	m.role = ""
	m.session = nil
	m.originalUser = nil
	m.impersonating = false
	m.bearerToken = ""
}

func (m *Manager) cancelRefreshLocked() {
	if m.refreshCancel != nil {
		m.refreshCancel()
		m.refreshCancel = nil
	}
}

func (m *Manager) recoverCorruptLocked(ctx context.Context, key string, cause error) {
	m.logger.Error().Err(cause).Str("key", key).Msg("corrupt persisted session state, clearing auth")
	m.metrics.Inc(MetricStateCorrupt)
	m.emitAudit(ctx, auditEventStateCorrupt, false, "", "", ErrCorruptState, map[string]string{"key": key})
	m.clearAuthLocked(ctx)
	m.loading = false
	m.notifyLocked()
}

func (m *Manager) actorIDLocked() string {
	if m.originalUser != nil {
		return m.originalUser.ID
	}
	return ""
}
