/*
store.go - Persistence and collaborator interfaces

KEY INTERFACES:
  Store:        What the projector needs (list templates, look up, insert)
  AccountStore: Store plus account CRUD used by the HTTP API
  RunRecorder:  Optional audit trail of projection runs
  Publisher:    Announces created instances (Kafka in production)
  RunLocker:    Optional cross-replica run lock (Redis in production)

UNIQUENESS:
  InsertInstance must reject a second instance with the same DedupKey with
  ErrDuplicateInstance. SQL stores back this with a partial unique index;
  the lookup in Projector.Materialize is the fast path, the index is the
  guard for racing runs.

IMPLEMENTATIONS:
  - recurring/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite (default)
  - store/postgres/postgres.go: PostgreSQL
*/
package recurring

import "context"

// Store is the backing store consumed by the projector.
type Store interface {
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// ListTemplates returns accounts of kind with is_recurring=true and
	// status=pending. Rows that cannot be decoded are reported through a
	// *MalformedTemplatesError alongside the templates that could.
	ListTemplates(ctx context.Context, kind Kind) ([]Account, error)

	// FindInstance reports whether a non-recurring account exists for key.
	FindInstance(ctx context.Context, key DedupKey) (bool, error)

	// InsertInstance persists a generated instance.
	InsertInstance(ctx context.Context, instance Account) error
}

// AccountFilter narrows ListAccounts. Zero values match everything.
type AccountFilter struct {
	CompanyID string
	Recurring *bool
	Status    Status
	Limit     int
}

// AccountStore adds the CRUD operations exposed over HTTP.
type AccountStore interface {
	Store

	// SaveAccount inserts a new account. Returns ErrDuplicateAccount if the ID exists.
	SaveAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, kind Kind, id string) (*Account, error)
	ListAccounts(ctx context.Context, kind Kind, filter AccountFilter) ([]Account, error)
}

// RunRecorder persists projection run records. Saving the same ID twice
// updates the record.
type RunRecorder interface {
	SaveRun(ctx context.Context, run ProjectionRun) error
	ListRuns(ctx context.Context, limit int) ([]ProjectionRun, error)
}

// Publisher announces created instances.
type Publisher interface {
	Publish(ctx context.Context, event InstanceCreated) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, InstanceCreated) error { return nil }

// RunLocker serializes runs across processes. ok=false means another holder
// has the lock.
type RunLocker interface {
	TryLock(ctx context.Context) (unlock func(), ok bool, err error)
}
