package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"emlakindex/server/internal/models"
)

type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// GetObservations returns observed price records, optionally restricted to a
// date range (inclusive, "2006-01-02" strings) and a property type. Empty
// filter values match everything.
func (d *Database) GetObservations(startDate, endDate string, propertyType string) ([]models.PriceObservation, error) {
	query := `
        SELECT
            id,
            location_code,
            property_type,
            date,
            price,
            COALESCE(size_m2, 0) as size_m2,
            COALESCE(price_per_m2, 0) as price_per_m2,
            transaction_count,
            COALESCE(created_at, CURRENT_TIMESTAMP) as created_at
        FROM price_observations
        WHERE (? = '' OR date >= ?)
        AND (? = '' OR date <= ?)
        AND (? = '' OR property_type = ?)
        ORDER BY location_code, date
    `
	var args []interface{}
	args = append(args,
		startDate, startDate,
		endDate, endDate,
		propertyType, propertyType,
	)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var observations []models.PriceObservation
	for rows.Next() {
		var o models.PriceObservation
		var propType string
		var date string
		var txCount sql.NullInt64
		var createdAt sql.NullString

		err := rows.Scan(
			&o.ID,
			&o.LocationCode,
			&propType,
			&date,
			&o.Price,
			&o.SizeM2,
			&o.PricePerM2,
			&txCount,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}

		o.PropertyType = models.PropertyType(propType)
		if txCount.Valid {
			tc := int(txCount.Int64)
			o.TransactionCount = &tc
		}
		if t, err := parseDate(date); err == nil {
			o.Date = t
		}
		if createdAt.Valid && createdAt.String != "" {
			if t, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
				o.CreatedAt = t
			}
		}

		observations = append(observations, o)
	}
	return observations, rows.Err()
}

// GetObservationCount returns the number of stored observations for a
// property type. An empty type counts everything.
func (d *Database) GetObservationCount(propertyType string) (int, error) {
	var count int
	err := d.db.QueryRow(`
		SELECT COUNT(*) FROM price_observations
		WHERE (? = '' OR property_type = ?)
	`, propertyType, propertyType).Scan(&count)
	return count, err
}

// SaveBackfillPredictions persists one location's predictions for a session.
// Re-running a session for the same location replaces its rows.
func (d *Database) SaveBackfillPredictions(sessionID string, result models.BackfillResult) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO backfill_predictions
		(session_id, location_code, property_type, period, predicted_price_per_m2, confidence, model_used, is_predicted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range result.Predictions {
		_, err = stmt.Exec(
			sessionID,
			result.LocationCode,
			string(result.PropertyType),
			p.Period,
			p.PredictedPricePerM2,
			p.Confidence,
			string(result.ModelUsed),
		)
		if err != nil {
			return fmt.Errorf("failed to insert prediction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveBackfillMetadata records the per-location training summary of a session.
func (d *Database) SaveBackfillMetadata(sessionID string, result models.BackfillResult) error {
	_, err := d.db.Exec(`
		INSERT INTO backfill_metadata
		(session_id, location_code, property_type, model_used, prediction_count, avg_confidence, rmse, mae, r2_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sessionID,
		result.LocationCode,
		string(result.PropertyType),
		string(result.ModelUsed),
		len(result.Predictions),
		result.AvgConfidence(),
		result.RMSE,
		result.MAE,
		result.R2Score,
	)
	if err != nil {
		return fmt.Errorf("failed to insert backfill metadata: %w", err)
	}
	return nil
}

// GetLatestSessionID returns the most recent backfill session, or "" when no
// run has been recorded yet.
func (d *Database) GetLatestSessionID() (string, error) {
	var sessionID string
	err := d.db.QueryRow(`
		SELECT session_id FROM backfill_metadata
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`).Scan(&sessionID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return sessionID, err
}

// GetBackfillResults reassembles the stored results of a session: one entry
// per backfilled location with its predictions in period order.
func (d *Database) GetBackfillResults(sessionID string) ([]models.BackfillResult, error) {
	rows, err := d.db.Query(`
		SELECT location_code, property_type, model_used, avg_confidence, rmse, mae, r2_score
		FROM backfill_metadata
		WHERE session_id = ?
		ORDER BY location_code
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backfill metadata: %w", err)
	}
	defer rows.Close()

	var results []models.BackfillResult
	for rows.Next() {
		var r models.BackfillResult
		var propType, modelUsed string
		var avgConfidence float64
		if err := rows.Scan(&r.LocationCode, &propType, &modelUsed, &avgConfidence, &r.RMSE, &r.MAE, &r.R2Score); err != nil {
			return nil, fmt.Errorf("failed to scan backfill metadata: %w", err)
		}
		r.PropertyType = models.PropertyType(propType)
		r.ModelUsed = models.ModelKind(modelUsed)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		preds, err := d.getPredictions(sessionID, results[i].LocationCode, string(results[i].PropertyType))
		if err != nil {
			return nil, err
		}
		results[i].Predictions = preds
		for _, p := range preds {
			results[i].FilledPeriods = append(results[i].FilledPeriods, p.Period)
		}
	}
	return results, nil
}

func (d *Database) getPredictions(sessionID, locationCode, propertyType string) ([]models.BackfillPrediction, error) {
	rows, err := d.db.Query(`
		SELECT period, predicted_price_per_m2, confidence, is_predicted
		FROM backfill_predictions
		WHERE session_id = ? AND location_code = ? AND property_type = ?
		ORDER BY period
	`, sessionID, locationCode, propertyType)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var preds []models.BackfillPrediction
	for rows.Next() {
		var p models.BackfillPrediction
		if err := rows.Scan(&p.Period, &p.PredictedPricePerM2, &p.Confidence, &p.IsPredicted); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		preds = append(preds, p)
	}
	return preds, rows.Err()
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}

// parseDate accepts the date formats sqlite hands back depending on how the
// row was written.
func parseDate(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999-07:00",
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}
