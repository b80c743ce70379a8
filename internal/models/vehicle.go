package models

import "time"

// Vehicle is the immutable reference record whose lifecycle state is tracked.
type Vehicle struct {
	ID    int64  `json:"id"`
	Make  string `json:"make"`
	Model string `json:"model"`
}

// StateLogEntry is one recorded state transition for a vehicle.
type StateLogEntry struct {
	VehicleID int64     `json:"vehicleId"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// VehicleState is the vehicle joined with the state-log entry that was in
// effect at the requested time.
type VehicleState struct {
	ID        int64     `json:"id"`
	Make      string    `json:"make"`
	Model     string    `json:"model"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// NewVehicleState projects a vehicle and a log entry into a VehicleState.
// The timestamp is normalised to UTC.
func NewVehicleState(v Vehicle, entry StateLogEntry) *VehicleState {
	return &VehicleState{
		ID:        v.ID,
		Make:      v.Make,
		Model:     v.Model,
		State:     entry.State,
		Timestamp: entry.Timestamp.UTC(),
	}
}

// StateQuery is a validated point-in-time lookup.
// Timestamp keeps the caller's literal; At is the parsed instant.
type StateQuery struct {
	VehicleID int64
	Timestamp string
	At        time.Time
}
