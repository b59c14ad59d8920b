package interfaces

import (
	"context"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
)

// HierarchyRepository provides lookup-or-create access to the organizational
// hierarchy (Region -> Depot -> Transformer). Get-or-create operations must be
// atomic under concurrent first-sight creation: unique index plus
// fetch-after-conflict, never a bare existence check.
type HierarchyRepository interface {
	GetOrCreateRegion(ctx context.Context, name string) (*taismodels.Region, error)
	GetOrCreateDepot(ctx context.Context, name string, regionID uint) (*taismodels.Depot, error)
	GetOrCreateTransformer(ctx context.Context, defaults taismodels.Transformer) (*taismodels.Transformer, error)

	// GetTransformer looks up by the external transformer identifier.
	// Returns (nil, nil) when no such transformer exists.
	GetTransformer(ctx context.Context, transformerID string) (*taismodels.Transformer, error)

	// GetTransformerByPK looks up by primary key. Returns (nil, nil) when missing.
	GetTransformerByPK(ctx context.Context, id uint) (*taismodels.Transformer, error)
}
