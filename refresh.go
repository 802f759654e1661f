package authsession

import (
	"context"
	"errors"

	"github.com/shootbase/authsession/identity"
	"github.com/shootbase/authsession/store"
)

// runRefresh reconciles the cached profile against the identity endpoint.
// It runs once per Start, on its own goroutine, with the epoch and
// impersonation flag captured before suspension. Every commit path
// re-checks both against the live state; any mismatch discards the result
// unconditionally.
func (m *Manager) runRefresh(ctx context.Context, bearerToken string, epoch uint64, impersonating bool) {
	profile, err := m.identity.FetchProfile(ctx, bearerToken)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			// Superseded by a synchronous transition, not a failure.
			m.metrics.Inc(MetricRefreshCancelled)
			m.logger.Debug().Msg("identity refresh cancelled")
		case errors.Is(err, identity.ErrUnauthenticated):
			m.refreshUnauthorized(ctx, epoch)
		default:
			// Best-effort reconciliation: the cached user stays
			// authoritative.
			m.metrics.Inc(MetricRefreshFailure)
			m.logger.Warn().Err(err).Msg("identity refresh failed, keeping cached profile")
			m.mu.Lock()
			m.cancelRefreshLocked()
			m.mu.Unlock()
		}
		return
	}

	m.commitRefresh(ctx, profile, epoch, impersonating)
}

// refreshUnauthorized handles a 401/419 from the identity endpoint: the
// stored credentials are no longer valid, so force a full logout — unless
// the epoch moved while the response was in flight, in which case the
// current identity was established by a newer transition and the response
// is stale.
func (m *Manager) refreshUnauthorized(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// ctx is this refresh's own derived context; detach the cancel func
	// now and release it once the storage work below is done.
	if cancel := m.refreshCancel; cancel != nil {
		m.refreshCancel = nil
		defer cancel()
	}

	if ctx.Err() != nil {
		m.metrics.Inc(MetricRefreshCancelled)
		return
	}
	if m.epoch != epoch || m.user == nil {
		m.metrics.Inc(MetricRefreshDiscarded)
		return
	}

	uid := m.user.ID
	m.clearAuthLocked(ctx)
	m.loading = false
	m.notifyLocked()

	m.metrics.Inc(MetricRefreshUnauthorized)
	m.emitAudit(ctx, auditEventRefreshUnauthorized, false, uid, "", identity.ErrUnauthenticated, nil)
	m.logger.Info().Str("user_id", uid).Msg("identity refresh rejected, session ended")
}

func (m *Manager) commitRefresh(ctx context.Context, p *identity.Profile, epoch uint64, impersonating bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// ctx is this refresh's own derived context; detach the cancel func
	// now and release it once the commit work below is done.
	if cancel := m.refreshCancel; cancel != nil {
		m.refreshCancel = nil
		defer cancel()
	}

	// The request context may have been cancelled after FetchProfile
	// returned but before this goroutine took the lock; a cancelled
	// refresh never commits.
	if ctx.Err() != nil {
		m.metrics.Inc(MetricRefreshCancelled)
		return
	}
	if m.epoch != epoch || m.impersonating != impersonating || m.user == nil {
		m.metrics.Inc(MetricRefreshDiscarded)
		m.emitAudit(ctx, auditEventRefreshDiscarded, false, "", m.actorIDLocked(), ErrRefreshSuperseded, nil)
		return
	}

	// The persisted marker is the second staleness source: it must still
	// agree with the impersonation state captured before suspension.
	_, markerErr := m.store.Get(ctx, keyOriginalUser)
	markerPresent := markerErr == nil
	if markerErr != nil && !errors.Is(markerErr, store.ErrNotFound) {
		m.metrics.Inc(MetricRefreshDiscarded)
		m.logger.Warn().Err(markerErr).Msg("impersonation marker unreadable, discarding refresh")
		return
	}
	if markerPresent != impersonating {
		m.metrics.Inc(MetricRefreshDiscarded)
		m.emitAudit(ctx, auditEventRefreshDiscarded, false, "", m.actorIDLocked(), ErrRefreshSuperseded, nil)
		return
	}

	merged := mergeProfile(m.user, p)
	if err := m.persistUser(ctx, merged); err != nil {
		m.metrics.Inc(MetricRefreshFailure)
		m.logger.Warn().Err(err).Msg("persisting refreshed profile failed")
		return
	}

	m.user = merged
	m.role = merged.Role
	m.rebuildSessionLocked()
	m.notifyLocked()

	m.metrics.Inc(MetricRefreshSuccess)
	m.emitAudit(ctx, auditEventRefreshSuccess, true, merged.ID, m.actorIDLocked(), nil, nil)
	m.logger.Debug().Str("user_id", merged.ID).Msg("profile refreshed from identity endpoint")
}

// mergeProfile folds the canonical server profile into the cached record.
// The server response carries no display name, so the cached one is
// retained. A missing role resolves to admin via NormalizeRole — observed
// upstream behavior, see DESIGN.md.
func mergeProfile(u *User, p *identity.Profile) *User {
	merged := u.Clone()
	if p.ID != "" {
		merged.ID = p.ID
	}
	if p.Email != "" {
		merged.Email = p.Email
	}
	merged.Role = NormalizeRole(p.Role)
	if p.CreatedAt != "" {
		merged.CreatedAt = p.CreatedAt
	}

	if merged.Metadata == nil {
		merged.Metadata = make(map[string]any)
	}
	for k, v := range map[string]string{
		"phone":   p.Phone,
		"city":    p.City,
		"state":   p.State,
		"zip":     p.Zip,
		"company": p.Company,
		"bio":     p.Bio,
	} {
		if v != "" {
			merged.Metadata[k] = v
		}
	}
	merged.Metadata["isActive"] = p.IsActive

	return merged
}
