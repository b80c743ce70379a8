package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

const (
	ResourceVehicle = "vehicle"
	ResourceState   = "state"
)

// NotFoundError is returned when a read completed successfully but matched no rows
type NotFoundError struct {
	Resource  string
	VehicleID int64
	Message   string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s for vehicle %d not found", e.Resource, e.VehicleID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewVehicleNotFoundError(vehicleID int64) *NotFoundError {
	return &NotFoundError{
		Resource:  ResourceVehicle,
		VehicleID: vehicleID,
		Message:   fmt.Sprintf("vehicle %d not found", vehicleID),
	}
}

func NewStateNotFoundError(vehicleID int64) *NotFoundError {
	return &NotFoundError{
		Resource:  ResourceState,
		VehicleID: vehicleID,
		Message:   "no state recorded at or before this time",
	}
}

// TransientError wraps connection, timeout and transaction failures. It never
// means "no data".
type TransientError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *TransientError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timed out: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsVehicleNotFound reports whether err is a NotFoundError for the vehicle row.
func IsVehicleNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Resource == ResourceVehicle
}

// IsStateNotFound reports whether err is a NotFoundError for the state log.
func IsStateNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) && nf.Resource == ResourceState
}
