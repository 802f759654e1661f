package authsession

import "errors"

var (
	// ErrManagerClosed is returned by operations invoked after Close.
	ErrManagerClosed = errors.New("session manager closed")
	// ErrBuilderUsed is returned when Build is called twice on one builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrStoreRequired is returned by Build when no backing store is configured.
	ErrStoreRequired = errors.New("store or redis client required")
	// ErrCorruptState marks an unparsable persisted record. It is never
	// returned across the public boundary; recovery is a full clear of the
	// reserved keys, and the error appears only in logs and audit events.
	ErrCorruptState = errors.New("corrupt persisted session state")
	// ErrRefreshSuperseded marks a refresh result discarded because a newer
	// identity transition bumped the epoch while the request was in flight.
	ErrRefreshSuperseded = errors.New("refresh superseded by identity transition")
)
