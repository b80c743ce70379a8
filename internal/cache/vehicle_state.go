package cache

import "github.com/jtoloui/motorway-takehome-backend/internal/models"

// VehicleStateCache caches resolved point-in-time states.
type VehicleStateCache = Cache[models.VehicleState]

func NewVehicleStateCache(backend Backend, opts Options) (*VehicleStateCache, error) {
	codec, err := NewSchemaCodec[models.VehicleState](VehicleStateSchema)
	if err != nil {
		return nil, err
	}
	return New[models.VehicleState](backend, codec, opts), nil
}
