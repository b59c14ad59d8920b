package implementation

import (
	"context"
	"errors"
	"fmt"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormHierarchyRepository struct {
	db *gorm.DB
}

func NewGormHierarchyRepository(db *gorm.DB) *GormHierarchyRepository {
	return &GormHierarchyRepository{db: db}
}

func (r *GormHierarchyRepository) GetOrCreateRegion(ctx context.Context, name string) (*taismodels.Region, error) {
	region := taismodels.Region{Name: name}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&region).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create region %q: %w", name, err)
	}

	// On conflict the insert is a no-op and the struct carries no primary key;
	// re-read the authoritative row either way.
	var out taismodels.Region
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch region %q: %w", name, err)
	}
	return &out, nil
}

func (r *GormHierarchyRepository) GetOrCreateDepot(ctx context.Context, name string, regionID uint) (*taismodels.Depot, error) {
	depot := taismodels.Depot{Name: name, RegionID: regionID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}, {Name: "region_id"}}, DoNothing: true}).
		Create(&depot).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create depot %q: %w", name, err)
	}

	var out taismodels.Depot
	if err := r.db.WithContext(ctx).Where("name = ? AND region_id = ?", name, regionID).First(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch depot %q: %w", name, err)
	}
	return &out, nil
}

func (r *GormHierarchyRepository) GetOrCreateTransformer(ctx context.Context, defaults taismodels.Transformer) (*taismodels.Transformer, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transformer_id"}}, DoNothing: true}).
		Create(&defaults).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create transformer %q: %w", defaults.TransformerID, err)
	}

	var out taismodels.Transformer
	if err := r.db.WithContext(ctx).Where("transformer_id = ?", defaults.TransformerID).First(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transformer %q: %w", defaults.TransformerID, err)
	}
	return &out, nil
}

func (r *GormHierarchyRepository) GetTransformer(ctx context.Context, transformerID string) (*taismodels.Transformer, error) {
	var out taismodels.Transformer
	err := r.db.WithContext(ctx).Where("transformer_id = ?", transformerID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *GormHierarchyRepository) GetTransformerByPK(ctx context.Context, id uint) (*taismodels.Transformer, error) {
	var out taismodels.Transformer
	err := r.db.WithContext(ctx).First(&out, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
