package domain

import "context"

// Store is the unit of work over users and statements.
type Store interface {
	Users() UserRepository
	Statements() StatementRepository
	// WithTransaction runs fn against a transactional Store. Writes made
	// through it are committed together when fn returns nil and discarded
	// otherwise.
	WithTransaction(ctx context.Context, fn func(tx Store) error) error
}
