package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Region groups location codes that form one housing market
type Region struct {
	Name      string   `json:"name"`
	Locations []string `json:"locations"`
}

// RegionConfig represents the full region configuration
type RegionConfig struct {
	Regions []Region `json:"regions"`
}

var (
	regionConfig *RegionConfig
	regionLock   sync.RWMutex
	regionPath   = "config/regions.json"
)

// LoadRegionConfig loads the region configuration from file. A missing file
// falls back to regions derived from the location registry.
func LoadRegionConfig() error {
	regionLock.Lock()
	defer regionLock.Unlock()

	absPath, err := filepath.Abs(regionPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := os.ReadFile(absPath)
	if os.IsNotExist(err) {
		regionConfig = defaultRegionConfig()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %v", err)
	}

	var config RegionConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config: %v", err)
	}

	regionConfig = &config
	return nil
}

// SaveRegionConfig saves the current configuration to file
func SaveRegionConfig() error {
	regionLock.Lock()
	defer regionLock.Unlock()

	if regionConfig == nil {
		return fmt.Errorf("no configuration loaded")
	}

	absPath, err := filepath.Abs(regionPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := json.MarshalIndent(regionConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}
	return nil
}

// GetRegions returns all configured regions
func GetRegions() []Region {
	regionLock.RLock()
	defer regionLock.RUnlock()

	if regionConfig == nil {
		return defaultRegionConfig().Regions
	}
	out := make([]Region, len(regionConfig.Regions))
	copy(out, regionConfig.Regions)
	return out
}

// GetRegionByName returns a region by name, or nil when unknown
func GetRegionByName(name string) *Region {
	regionLock.RLock()
	defer regionLock.RUnlock()

	cfg := regionConfig
	if cfg == nil {
		cfg = defaultRegionConfig()
	}
	for _, region := range cfg.Regions {
		if region.Name == name {
			r := region
			return &r
		}
	}
	return nil
}

// UpdateRegion replaces or appends a region in the loaded configuration
func UpdateRegion(region Region) {
	regionLock.Lock()
	defer regionLock.Unlock()

	if regionConfig == nil {
		regionConfig = defaultRegionConfig()
	}
	for i, existing := range regionConfig.Regions {
		if existing.Name == region.Name {
			regionConfig.Regions[i] = region
			return
		}
	}
	regionConfig.Regions = append(regionConfig.Regions, region)
}

// defaultRegionConfig groups the location registry by region name
func defaultRegionConfig() *RegionConfig {
	byRegion := make(map[string][]string)
	var order []string
	for _, loc := range SupportedLocations {
		if _, seen := byRegion[loc.Region]; !seen {
			order = append(order, loc.Region)
		}
		byRegion[loc.Region] = append(byRegion[loc.Region], loc.Code)
	}

	cfg := &RegionConfig{}
	for _, name := range order {
		cfg.Regions = append(cfg.Regions, Region{Name: name, Locations: byRegion[name]})
	}
	return cfg
}
