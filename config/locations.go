package config

import "strings"

// Location represents a known market location
type Location struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

// SupportedLocations is the registry of locations the index tracks
var SupportedLocations = []Location{
	{Code: "IST-001", Name: "Kadikoy", Region: "istanbul"},
	{Code: "IST-002", Name: "Besiktas", Region: "istanbul"},
	{Code: "IST-003", Name: "Uskudar", Region: "istanbul"},
	{Code: "IST-004", Name: "Sisli", Region: "istanbul"},
	{Code: "ANK-001", Name: "Cankaya", Region: "ankara"},
	{Code: "ANK-002", Name: "Kecioren", Region: "ankara"},
	{Code: "IZM-001", Name: "Konak", Region: "izmir"},
	{Code: "IZM-002", Name: "Karsiyaka", Region: "izmir"},
	// Add more locations here as needed
}

// GetLocationCodes returns the codes of all registered locations
func GetLocationCodes() []string {
	codes := make([]string, len(SupportedLocations))
	for i, loc := range SupportedLocations {
		codes[i] = loc.Code
	}
	return codes
}

// GetLocationByCode returns a location by its code
func GetLocationByCode(code string) *Location {
	for _, loc := range SupportedLocations {
		if loc.Code == code {
			return &loc
		}
	}
	return nil
}

// NormalizeLocationCode canonicalizes user-supplied location codes:
// uppercase, trimmed, internal whitespace collapsed to a single dash.
func NormalizeLocationCode(code string) string {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	normalized = strings.Join(strings.Fields(normalized), "-")
	return normalized
}
