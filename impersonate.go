package authsession

import (
	"context"
	"encoding/json"
	"fmt"
)

// Impersonate switches the live identity to the target user while saving
// the acting admin's profile for later restoration. The epoch is bumped
// before anything else and any in-flight refresh is cancelled, so a stale
// response fetched under the admin's token can never land on top of the
// target's identity.
//
// Switching to a second target while already impersonating does not
// re-snapshot: the original admin record from the first transition is the
// only one preserved. Calling with no current user is a silent no-op.
func (m *Manager) Impersonate(ctx context.Context, target User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.user == nil {
		return nil
	}

	m.epoch++
	m.cancelRefreshLocked()

	switching := m.impersonating
	if !m.impersonating {
		snap := m.user.Clone()
		raw, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode original user: %w", err)
		}
		if err := m.store.Set(ctx, keyOriginalUser, string(raw)); err != nil {
			return fmt.Errorf("persist original user: %w", err)
		}
		m.originalUser = snap
		m.impersonating = true
	}

	target.Role = NormalizeRole(string(target.Role))
	tu := target.Clone()

	if err := m.persistUser(ctx, tu); err != nil {
		m.emitAudit(ctx, auditEventImpersonationStarted, false, tu.ID, m.actorIDLocked(), err, nil)
		return err
	}
	// Dependent views must refetch shoots under the new identity.
	if err := m.store.Delete(ctx, keyShootCache); err != nil {
		m.logger.Warn().Err(err).Msg("shoot cache clear failed")
	}

	m.user = tu
	m.role = tu.Role
	m.rebuildSessionLocked()
	m.notifyLocked()

	if switching {
		m.metrics.Inc(MetricImpersonationSwitched)
		m.emitAudit(ctx, auditEventImpersonationSwitched, true, tu.ID, m.actorIDLocked(), nil, nil)
	} else {
		m.metrics.Inc(MetricImpersonationStarted)
		m.emitAudit(ctx, auditEventImpersonationStarted, true, tu.ID, m.actorIDLocked(), nil, nil)
	}
	m.logger.Info().
		Str("target_id", tu.ID).
		Str("actor_id", m.actorIDLocked()).
		Bool("switched", switching).
		Msg("impersonation transition")
	return nil
}

// StopImpersonating restores the saved admin profile as the live identity.
// The persisted marker is removed before anything else so storage readers
// observe the non-impersonating state as early as possible. Calling while
// not impersonating is a silent no-op.
func (m *Manager) StopImpersonating(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if !m.impersonating || m.originalUser == nil {
		return nil
	}

	m.epoch++
	// A refresh may be in flight when the page was reloaded while
	// impersonating; cancel it the same way Impersonate does.
	m.cancelRefreshLocked()

	if err := m.store.Delete(ctx, keyOriginalUser); err != nil {
		return fmt.Errorf("remove original user key: %w", err)
	}

	restored := m.originalUser
	if err := m.persistUser(ctx, restored); err != nil {
		m.emitAudit(ctx, auditEventImpersonationStopped, false, restored.ID, "", err, nil)
		return err
	}
	if err := m.store.Delete(ctx, keyShootCache); err != nil {
		m.logger.Warn().Err(err).Msg("shoot cache clear failed")
	}

	m.user = restored
	m.role = restored.Role
	m.originalUser = nil
	m.impersonating = false
	m.rebuildSessionLocked()
	m.notifyLocked()

	m.metrics.Inc(MetricImpersonationStopped)
	m.emitAudit(ctx, auditEventImpersonationStopped, true, restored.ID, "", nil, nil)
	m.logger.Info().Str("user_id", restored.ID).Msg("impersonation ended")
	return nil
}
