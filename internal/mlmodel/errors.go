package mlmodel

import "errors"

var (
	// ErrInsufficientData is returned when a training set is below the
	// minimum row count.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrModelNotTrained is returned when prediction is requested before a
	// successful Train call.
	ErrModelNotTrained = errors.New("model must be trained first")

	// ErrNoModelForLocation is returned when a prediction is requested for a
	// location that has no trained time-series model.
	ErrNoModelForLocation = errors.New("no trained model for location")
)
