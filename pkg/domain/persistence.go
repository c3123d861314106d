package domain

import "context"

// ProtocolStore is the persistence port. Save overwrites the whole aggregate;
// there are no partial patch semantics. Load and Delete return NotFoundError
// for unknown ids.
type ProtocolStore interface {
	Load(ctx context.Context, id string) (Protocol, error)
	Save(ctx context.Context, protocol Protocol) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Protocol, error)
}
