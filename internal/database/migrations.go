package database

import "fmt"

func (d *Database) RunMigrations() error {
	// Observed price records, one row per location, type and month
	_, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS price_observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location_code TEXT NOT NULL,
			property_type TEXT NOT NULL,
			date DATE NOT NULL,
			price REAL NOT NULL,
			size_m2 REAL,
			price_per_m2 REAL,
			transaction_count INTEGER,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (location_code, property_type, date)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create price_observations table: %v", err)
	}

	// Backfilled values, kept separate from observations and flagged
	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS backfill_predictions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			location_code TEXT NOT NULL,
			property_type TEXT NOT NULL,
			period TEXT NOT NULL,
			predicted_price_per_m2 REAL NOT NULL,
			confidence REAL NOT NULL,
			model_used TEXT NOT NULL,
			is_predicted BOOLEAN DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (session_id, location_code, property_type, period)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create backfill_predictions table: %v", err)
	}

	// Per-location training summary of each backfill session
	_, err = d.db.Exec(`
		CREATE TABLE IF NOT EXISTS backfill_metadata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			location_code TEXT NOT NULL,
			property_type TEXT NOT NULL,
			model_used TEXT NOT NULL,
			prediction_count INTEGER NOT NULL,
			avg_confidence REAL,
			rmse REAL,
			mae REAL,
			r2_score REAL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create backfill_metadata table: %v", err)
	}

	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_observations_location_date
		ON price_observations(location_code, date);
	`)
	if err != nil {
		return err
	}

	_, err = d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_predictions_session
		ON backfill_predictions(session_id, location_code);
	`)
	if err != nil {
		return err
	}

	return nil
}
