package repository

// The resolution queries filter on timestamp <= T and take the latest row.
// They never look past T: a vehicle with no entry at or before T resolves to
// nothing.

const (
	pgGetVehicleByIDQuery = `SELECT id, make, model FROM vehicles WHERE id = $1`

	pgGetStateAtTimeQuery = `
		SELECT v.id, v.make, v.model, sl."state", sl."timestamp"
		FROM vehicles v
		JOIN "stateLogs" sl ON sl."vehicleId" = v.id
		WHERE v.id = $1
		  AND sl."timestamp" <= $2
		ORDER BY sl."timestamp" DESC
		LIMIT 1
	`

	pgInsertVehicleQuery = `
		INSERT INTO vehicles (id, make, model)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`

	pgAppendStateQuery = `
		INSERT INTO "stateLogs" ("vehicleId", "state", "timestamp")
		VALUES ($1, $2, $3)
		ON CONFLICT ("vehicleId", "timestamp") DO NOTHING
	`
)

const (
	sqliteGetVehicleByIDQuery = `SELECT id, make, model FROM vehicles WHERE id = ?`

	sqliteGetStateAtTimeQuery = `
		SELECT v.id, v.make, v.model, sl.state, sl.recorded_at
		FROM vehicles v
		JOIN state_logs sl ON sl.vehicle_id = v.id
		WHERE v.id = ?
		  AND sl.recorded_at <= ?
		ORDER BY sl.recorded_at DESC
		LIMIT 1
	`

	sqliteInsertVehicleQuery = `INSERT OR IGNORE INTO vehicles (id, make, model) VALUES (?, ?, ?)`

	sqliteAppendStateQuery = `INSERT OR IGNORE INTO state_logs (vehicle_id, state, recorded_at) VALUES (?, ?, ?)`
)
