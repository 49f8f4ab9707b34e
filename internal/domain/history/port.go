package history

import "context"

// Repository port for analysis_history rows.
// Mutations always filter by owner as well as id.
type Repository interface {
	Insert(ctx context.Context, owner string, n NewItem) (*Item, error)
	Update(ctx context.Context, owner string, id ItemID, p Patch) (*Item, error)
	Delete(ctx context.Context, owner string, id ItemID) error
	// Get reads by id alone; visibility is decided by the caller's share policy.
	Get(ctx context.Context, id ItemID) (*Item, error)
	List(ctx context.Context, owner string, limit int, order Order) ([]*Item, error)
}

// ChangeFeed delivers row changes for one owner, at least once.
type ChangeFeed interface {
	Subscribe(ctx context.Context, owner string) (Subscription, error)
}

// Subscription is a live feed registration. Errors are non-fatal
// notifications; the Events channel is closed after Close.
type Subscription interface {
	Events() <-chan ChangeEvent
	Errors() <-chan error
	Close() error
}

// ArtifactStore port for rendered exports
type ArtifactStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}
