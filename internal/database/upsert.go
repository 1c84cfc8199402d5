package database

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"emlakindex/server/internal/models"
)

// UpsertObservations writes a batch of observations inside the given gorm
// transaction. A row for the same location, type and date overwrites the
// previous value.
func UpsertObservations(tx *gorm.DB, batch []*models.PriceObservation) error {
	if len(batch) == 0 {
		return nil
	}
	for _, o := range batch {
		if o.PricePerM2 == 0 && o.SizeM2 > 0 {
			o.PricePerM2 = o.Price / o.SizeM2
		}
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "location_code"},
			{Name: "property_type"},
			{Name: "date"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"price", "size_m2", "price_per_m2", "transaction_count",
		}),
	}).Create(batch).Error
	if err != nil {
		return fmt.Errorf("failed to upsert observations: %w", err)
	}
	return nil
}
