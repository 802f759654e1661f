package authsession

import (
	"context"
	"fmt"
)

// Login adopts the given profile as the authenticated identity. The role is
// normalized, the record is persisted, and — when a bearer token is given —
// the token is persisted under the primary token key. A new session bundle
// is derived and subscribers are notified.
func (m *Manager) Login(ctx context.Context, user User, bearerToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	// A startup refresh still in flight was fetched for whatever identity
	// was cached before this login; its result must never land on top of
	// the new one. The epoch stays untouched — it counts impersonation
	// transitions only.
	m.cancelRefreshLocked()

	user.Role = NormalizeRole(string(user.Role))
	u := user.Clone()

	if err := m.persistUser(ctx, u); err != nil {
		m.emitAudit(ctx, auditEventLogin, false, u.ID, "", err, nil)
		return err
	}
	if bearerToken != "" {
		if err := m.store.Set(ctx, keyAuthToken, bearerToken); err != nil {
			m.emitAudit(ctx, auditEventLogin, false, u.ID, "", err, nil)
			return fmt.Errorf("persist bearer token: %w", err)
		}
		m.bearerToken = bearerToken
	}

	m.user = u
	m.role = u.Role
	m.loading = false
	m.rebuildSessionLocked()
	m.notifyLocked()

	m.metrics.Inc(MetricLoginSuccess)
	m.emitAudit(ctx, auditEventLogin, true, u.ID, m.actorIDLocked(), nil, nil)
	return nil
}

// Logout clears all persisted auth keys, drops any impersonation state,
// cancels an in-flight refresh, and returns the manager to the
// unauthenticated state. Safe to call at any time.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}

	var uid string
	if m.user != nil {
		uid = m.user.ID
	}

	m.clearAuthLocked(ctx)
	m.loading = false
	m.notifyLocked()

	m.metrics.Inc(MetricLogout)
	m.emitAudit(ctx, auditEventLogout, true, uid, "", nil, nil)
	return nil
}

// SetUserRole updates the current user's role in place and recomputes the
// session bundle. No-op when no user is held.
func (m *Manager) SetUserRole(ctx context.Context, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.user == nil {
		return nil
	}

	normalized := NormalizeRole(string(role))
	updated := m.user.Clone()
	updated.Role = normalized

	if err := m.persistUser(ctx, updated); err != nil {
		return err
	}

	m.user = updated
	m.role = normalized
	m.rebuildSessionLocked()
	m.notifyLocked()
	return nil
}

// SetUser merges a partial profile into the current user: set fields
// overwrite, unset fields are retained, and metadata entries are merged
// key-by-key. The role is preserved unless the patch sets it explicitly.
// No-op when no user is held.
func (m *Manager) SetUser(ctx context.Context, patch UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.user == nil {
		return nil
	}

	merged := m.user.Clone()
	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Email != nil {
		merged.Email = *patch.Email
	}
	if patch.CreatedAt != nil {
		merged.CreatedAt = *patch.CreatedAt
	}
	if patch.Role != nil {
		merged.Role = NormalizeRole(string(*patch.Role))
	}
	if len(patch.Metadata) > 0 {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			merged.Metadata[k] = v
		}
	}

	if err := m.persistUser(ctx, merged); err != nil {
		return err
	}

	m.user = merged
	m.role = merged.Role
	m.rebuildSessionLocked()
	m.notifyLocked()
	return nil
}
