package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Enabled {
		t.Errorf("cache.enabled default = true, want false")
	}
	if cfg.Cache.Strategy != "simple" {
		t.Errorf("cache.strategy default = %q, want simple", cfg.Cache.Strategy)
	}
	if cfg.NodeServer.Threads != 1 {
		t.Errorf("nodeserver.threads default = %d, want 1", cfg.NodeServer.Threads)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STCACHE_CACHE_ENABLED", "true")
	t.Setenv("STCACHE_CACHE_STRATEGY", "always")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Cache.Enabled {
		t.Errorf("cache.enabled override not applied")
	}
	if cfg.Cache.Strategy != "always" {
		t.Errorf("cache.strategy override = %q, want always", cfg.Cache.Strategy)
	}
}

func TestNodeCapacitiesMapping(t *testing.T) {
	cfg := CacheConfig{RasterSize: 10, PointsSize: 20, LinesSize: 30, PolygonsSize: 40, PlotsSize: 50}
	caps := cfg.NodeCapacities()
	if caps[0] != 10 {
		t.Errorf("raster capacity = %d, want 10", caps[0])
	}
}
