package handlers

import (
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jtoloui/motorway-takehome-backend/internal/errors"
	"github.com/jtoloui/motorway-takehome-backend/internal/models"
)

const (
	reasonInvalidInput    = "Invalid input"
	reasonInvalidDatetime = "Invalid datetime"
)

// ParseGetVehicleStateByTimeRequest validates the raw path parameters. The id
// is trimmed and must be a positive integer; the timestamp must be RFC 3339
// with an explicit offset ("Z" or "+hh:mm"). The literal timestamp is kept
// alongside the parsed instant.
func ParseGetVehicleStateByTimeRequest(id, timestamp string) (models.StateQuery, error) {
	cleanID := strings.TrimSpace(id)
	vehicleID, err := strconv.ParseInt(cleanID, 10, 64)
	if err != nil || vehicleID <= 0 {
		return models.StateQuery{}, apperrors.NewValidationError("id", reasonInvalidInput)
	}

	at, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return models.StateQuery{}, apperrors.NewValidationError("timestamp", reasonInvalidDatetime)
	}

	return models.StateQuery{
		VehicleID: vehicleID,
		Timestamp: timestamp,
		At:        at,
	}, nil
}
