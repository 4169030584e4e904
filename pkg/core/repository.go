package core

import "context"

// Persistence defines the contract of the remote collaborator a collection
// synchronizes with. Adhering to this interface keeps the collection
// independent of the transport (filesystem, HTTP, memory).
type Persistence interface {
	// FetchAll returns every specification known to the collaborator.
	FetchAll(ctx context.Context) ([]Specification, error)

	// FetchOne returns a single specification. Fails with ErrNotFound.
	FetchOne(ctx context.Context, id string) (Specification, error)

	// Create persists a new specification. The collaborator may assign or
	// normalize ID, DateCreated and DateUpdated; the returned value is
	// authoritative.
	Create(ctx context.Context, spec Specification) (Specification, error)

	// Replace stores the full record under id. Fails with ErrNotFound when
	// the id is absent and ErrConflict on incompatible concurrent changes.
	Replace(ctx context.Context, id string, spec Specification) (Specification, error)

	// Remove deletes the specification. Collections tolerate ErrNotFound.
	Remove(ctx context.Context, id string) error
}

// ProjectStore defines access to the project configuration.
type ProjectStore interface {
	GetProject(ctx context.Context) (Project, error)
	UpdateProject(ctx context.Context, update ProjectUpdate) (Project, error)
}

// Watchable defines collaborators able to report changes made outside
// of this process.
type Watchable interface {
	// Watch emits EventExternal events until ctx is cancelled.
	Watch(ctx context.Context) (<-chan Event, error)
}

// HealthChecker defines collaborators exposing a health probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}
