package features

import "sort"

// CategoryEncoder maps string categories to dense small integer codes. It is
// an explicit value object: the orchestrator fits it once per run and threads
// it through training and inference so both see identical codes.
type CategoryEncoder struct {
	codes  map[string]int
	labels []string
}

// NewCategoryEncoder returns an unfitted encoder.
func NewCategoryEncoder() *CategoryEncoder {
	return &CategoryEncoder{codes: make(map[string]int)}
}

// Fitted reports whether the encoder has seen any categories.
func (e *CategoryEncoder) Fitted() bool {
	return len(e.labels) > 0
}

// Fit assigns codes to the sorted unique values, replacing any prior fit.
// Sorting makes the assignment deterministic regardless of input order.
func (e *CategoryEncoder) Fit(values []string) {
	uniq := make(map[string]bool, len(values))
	for _, v := range values {
		uniq[v] = true
	}
	labels := make([]string, 0, len(uniq))
	for v := range uniq {
		labels = append(labels, v)
	}
	sort.Strings(labels)

	e.codes = make(map[string]int, len(labels))
	e.labels = labels
	for i, v := range labels {
		e.codes[v] = i
	}
}

// Code returns the integer code for a value. Values unseen at fit time are
// appended so a single run keeps a consistent mapping.
func (e *CategoryEncoder) Code(value string) int {
	if c, ok := e.codes[value]; ok {
		return c
	}
	c := len(e.labels)
	e.codes[value] = c
	e.labels = append(e.labels, value)
	return c
}

// Labels returns the known categories in code order.
func (e *CategoryEncoder) Labels() []string {
	return append([]string(nil), e.labels...)
}
