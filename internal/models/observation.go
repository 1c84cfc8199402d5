package models

import (
	"fmt"
	"time"
)

// PropertyType categorizes the market segment of an observation.
type PropertyType string

const (
	PropertyResidentialSale PropertyType = "residential_sale"
	PropertyResidentialRent PropertyType = "residential_rent"
	PropertyCommercialSale  PropertyType = "commercial_sale"
	PropertyCommercialRent  PropertyType = "commercial_rent"
	PropertyLandSale        PropertyType = "land_sale"
)

// ParsePropertyType validates a property type string.
func ParsePropertyType(s string) (PropertyType, error) {
	switch PropertyType(s) {
	case PropertyResidentialSale, PropertyResidentialRent,
		PropertyCommercialSale, PropertyCommercialRent, PropertyLandSale:
		return PropertyType(s), nil
	}
	return "", fmt.Errorf("unsupported property type: %q", s)
}

// PriceObservation is one (location, property type, month) price record.
// Observations are ingested from the current market feed or the historical
// archive and are never produced by the backfill pipeline itself.
type PriceObservation struct {
	ID               int64        `json:"id"`
	LocationCode     string       `json:"location_code" gorm:"uniqueIndex:idx_observation_key"`
	PropertyType     PropertyType `json:"property_type" gorm:"uniqueIndex:idx_observation_key"`
	Date             time.Time    `json:"date" gorm:"uniqueIndex:idx_observation_key"`
	Price            float64      `json:"price"`
	SizeM2           float64      `json:"size_m2"`
	PricePerM2       float64      `json:"price_per_m2"`
	TransactionCount *int         `json:"transaction_count"`
	CreatedAt        time.Time    `json:"created_at"`
}

func (PriceObservation) TableName() string {
	return "price_observations"
}

// MonthKey returns the observation month as "YYYY-MM".
func (o PriceObservation) MonthKey() string {
	return o.Date.Format("2006-01")
}
