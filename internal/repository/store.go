package repository

import (
	"context"
	"time"

	"github.com/jtoloui/motorway-takehome-backend/internal/models"
)

// Tx is the transaction handle passed to the function given to Store.InTx.
// Every read on it executes inside that one transaction.
type Tx interface {
	// GetVehicleByID returns a *NotFoundError when no vehicle row exists.
	GetVehicleByID(ctx context.Context, id int64) (*models.Vehicle, error)
	// GetStateAtTime returns the vehicle joined with the latest state-log entry
	// whose timestamp is at or before at. Entries after at are never
	// considered; when none qualify it returns a *NotFoundError.
	GetStateAtTime(ctx context.Context, id int64, at time.Time) (*models.VehicleState, error)
}

// Store owns the connection pool and the transaction lifecycle.
type Store interface {
	// InTx acquires a connection, begins a transaction and calls fn with it.
	// The transaction commits when fn returns nil and rolls back otherwise;
	// the connection is released on both paths.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// Seeder writes reference data out of band of the request path.
type Seeder interface {
	InsertVehicle(ctx context.Context, v models.Vehicle) error
	AppendState(ctx context.Context, entry models.StateLogEntry) error
}

// WithTransaction runs fn inside store.InTx and returns its result.
func WithTransaction[T any](ctx context.Context, store Store, fn func(ctx context.Context, tx Tx) (T, error)) (T, error) {
	var result T
	err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		result, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
