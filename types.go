package authsession

import "strings"

// Role identifies the permission level attached to a user profile.
type Role string

const (
	// RoleClient is the least-privileged customer role.
	RoleClient Role = "client"
	// RolePhotographer marks field photographers with schedule access.
	RolePhotographer Role = "photographer"
	// RoleEditor marks photo editors with editing-queue access.
	RoleEditor Role = "editor"
	// RoleAdmin marks back-office administrators.
	RoleAdmin Role = "admin"
	// RoleSuperAdmin marks administrators with account management access.
	RoleSuperAdmin Role = "superadmin"
	// RoleSalesRep is the canonical client-side token for the
	// sales-representative role. Servers may send sales_rep, sales-rep,
	// or salesrep; NormalizeRole maps all of them here.
	RoleSalesRep Role = "salesRep"
)

// NormalizeRole maps server-side role spellings to their canonical form.
// The three legacy sales-representative spellings collapse to
// [RoleSalesRep]; any other non-empty value passes through unchanged.
//
// An empty role resolves to [RoleAdmin]. This reproduces the upstream
// dashboard behavior verbatim; see DESIGN.md for why callers should treat
// it with suspicion.
func NormalizeRole(role string) Role {
	if role == "" {
		return RoleAdmin
	}
	switch strings.ToLower(role) {
	case "sales_rep", "sales-rep", "salesrep":
		return RoleSalesRep
	}
	return Role(role)
}

// User is a profile record as held by the session manager. Metadata carries
// auxiliary profile attributes (city, state, zip, phone, company, bio,
// isActive) that the manager merges but never interprets.
type User struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Email     string         `json:"email,omitempty"`
	Role      Role           `json:"role,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the user, including its metadata map.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.Metadata != nil {
		out.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// UserPatch is a partial profile update applied by [Manager.SetUser].
// Nil fields are left untouched; Metadata entries are merged into the
// existing map, overwriting on key collision.
type UserPatch struct {
	Name      *string
	Email     *string
	Role      *Role
	CreatedAt *string
	Metadata  map[string]any
}

// SessionUser is the minimal user snapshot embedded in a [Session].
type SessionUser struct {
	ID        string         `json:"id"`
	Email     string         `json:"email,omitempty"`
	Role      Role           `json:"role,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty"`
}

// Session is the derived, short-lived bundle recomputed from the current
// user every time identity changes. It is advisory only: the expiry is not
// server-enforced, RefreshToken is currently always absent, and the bundle
// is never persisted independently — it is rebuilt from the persisted user
// record on each load.
type Session struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	TokenType    string      `json:"tokenType"`
	IssuedAt     int64       `json:"issuedAt"`
	ExpiresAt    int64       `json:"expiresAt"`
	User         SessionUser `json:"user"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.User.Metadata != nil {
		out.User.Metadata = make(map[string]any, len(s.User.Metadata))
		for k, v := range s.User.Metadata {
			out.User.Metadata[k] = v
		}
	}
	return &out
}

// State is an immutable snapshot of the manager's observable state.
// Invariant: Impersonating is true if and only if OriginalUser is non-nil.
type State struct {
	User          *User
	Role          Role
	Session       *Session
	OriginalUser  *User
	Authenticated bool
	Loading       bool
	Impersonating bool
}
