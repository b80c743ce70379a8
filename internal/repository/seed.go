package repository

import (
	"context"
	"time"

	"github.com/jtoloui/motorway-takehome-backend/internal/models"
)

// DemoVehicles and DemoStateLogs are the reference dataset loaded by the
// server's -seed flag.
var DemoVehicles = []models.Vehicle{
	{ID: 1, Make: "BMW", Model: "X1"},
	{ID: 2, Make: "AUDI", Model: "A4"},
	{ID: 3, Make: "VW", Model: "GOLF"},
}

var DemoStateLogs = []models.StateLogEntry{
	{VehicleID: 1, State: "quoted", Timestamp: time.Date(2022, 9, 10, 10, 23, 54, 0, time.UTC)},
	{VehicleID: 2, State: "quoted", Timestamp: time.Date(2022, 9, 10, 14, 59, 1, 0, time.UTC)},
	{VehicleID: 2, State: "selling", Timestamp: time.Date(2022, 9, 11, 17, 3, 17, 0, time.UTC)},
	{VehicleID: 2, State: "sold", Timestamp: time.Date(2022, 9, 12, 12, 41, 41, 0, time.UTC)},
	{VehicleID: 3, State: "quoted", Timestamp: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)},
	{VehicleID: 3, State: "selling", Timestamp: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
	{VehicleID: 3, State: "sold", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
}

// SeedDemo inserts the demo dataset. Existing rows are left untouched.
func SeedDemo(ctx context.Context, s Seeder) error {
	for _, v := range DemoVehicles {
		if err := s.InsertVehicle(ctx, v); err != nil {
			return err
		}
	}
	for _, entry := range DemoStateLogs {
		if err := s.AppendState(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}
