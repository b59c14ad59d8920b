package taismodels

import "time"

// Names used for the lazily created fallback hierarchy that devices are
// parented under until an operator assigns them explicitly.
const (
	UnassignedRegionName      = "Unassigned"
	UnassignedDepotName       = "Unassigned Depot"
	UnassignedTransformerID   = "UNASSIGNED"
	UnassignedTransformerName = "Unassigned Transformer"
)

// Region is the top level of the organizational hierarchy.
type Region struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Depot belongs to a Region. Depot names are unique within a region.
type Depot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;uniqueIndex:idx_depot_name_region" json:"name"`
	RegionID    uint      `gorm:"uniqueIndex:idx_depot_name_region" json:"region_id"`
	Region      *Region   `json:"region,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transformer is the physical asset that sensors and devices attach to.
type Transformer struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:100" json:"name"`
	TransformerID string    `gorm:"size:50;uniqueIndex" json:"transformer_id"`
	DepotID       uint      `json:"depot_id"`
	Depot         *Depot    `json:"depot,omitempty"`
	RegionID      uint      `json:"region_id"`
	Region        *Region   `json:"region,omitempty"`
	Capacity      float64   `json:"capacity"`
	Description   string    `json:"description"`
	IsActive      bool      `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
