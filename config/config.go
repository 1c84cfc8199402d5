package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// Server configuration
	Server struct {
		Port   string `env:"SERVER_PORT" envDefault:"5250"`
		DBPath string `env:"DB_PATH" envDefault:"database/emlakindex.db"`
	}

	// Backfill defaults, overridable per request
	Backfill struct {
		// Start of the backfill window, inclusive ("YYYY-MM-DD")
		StartDate string `env:"BACKFILL_START_DATE" envDefault:"2020-01-01"`

		// End of the backfill window, inclusive ("YYYY-MM-DD")
		EndDate string `env:"BACKFILL_END_DATE" envDefault:"2024-12-31"`

		// How many trailing months of observations feed model training
		CurrentDataMonths int `env:"BACKFILL_CURRENT_DATA_MONTHS" envDefault:"24"`

		// Advisory confidence floor. Predictions below it are flagged in
		// the run logs, never dropped: confidence is batch-relative.
		ConfidenceThreshold float64 `env:"BACKFILL_CONFIDENCE_THRESHOLD" envDefault:"0.7"`

		// Comma-separated model kinds to train
		Models []string `env:"BACKFILL_MODELS" envSeparator:"," envDefault:"timeseries,gbt"`

		// Scheduled runs: disabled unless explicitly turned on
		ScheduleEnabled bool `env:"BACKFILL_SCHEDULE_ENABLED" envDefault:"false"`

		// Hour of day (0-23) at which scheduled runs start
		ScheduleHour int `env:"BACKFILL_SCHEDULE_HOUR" envDefault:"2"`

		// Property types covered by scheduled runs
		PropertyTypes []string `env:"BACKFILL_PROPERTY_TYPES" envSeparator:"," envDefault:"residential_sale"`
	}

	// Telegram notification configuration
	Telegram struct {
		BotToken  string `env:"TELEGRAM_BOT_TOKEN"`
		ChatID    string `env:"TELEGRAM_CHAT_ID"`
		IsEnabled bool   `env:"TELEGRAM_ENABLED" envDefault:"false"`
	}

	// BatchProcessing configuration for observation ingestion
	BatchProcessing struct {
		// Maximum number of observations to accumulate before processing
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Maximum time to wait before processing a non-full batch (in seconds)
		MaxBatchWaitTime int `env:"BATCH_WAIT_TIME" envDefault:"30"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Clamp out-of-range values instead of failing startup
	if cfg.Backfill.CurrentDataMonths < 1 {
		cfg.Backfill.CurrentDataMonths = 1
	}
	if cfg.Backfill.ConfidenceThreshold < 0 {
		cfg.Backfill.ConfidenceThreshold = 0
	}
	if cfg.Backfill.ConfidenceThreshold > 1 {
		cfg.Backfill.ConfidenceThreshold = 1
	}
	if cfg.BatchProcessing.ProcessorCount < 1 {
		cfg.BatchProcessing.ProcessorCount = 1
	}
	if cfg.Backfill.ScheduleHour < 0 || cfg.Backfill.ScheduleHour > 23 {
		cfg.Backfill.ScheduleHour = 2
	}
	return cfg, nil
}
