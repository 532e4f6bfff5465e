package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// IndexServerConfig carries indexserver.* keys: the address clients
// and nodes dial to reach the index.
type IndexServerConfig struct {
	Host         string `mapstructure:"host"`
	PortFrontend int    `mapstructure:"port.frontend"`
	PortNode     int    `mapstructure:"port.node"`
}

// CacheConfig carries cache.* keys: whether caching is enabled at all,
// each CacheType's byte capacity, and which admission strategy to run
// newly computed results through.
type CacheConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	RasterSize    uint64  `mapstructure:"raster.size"`
	PointsSize    uint64  `mapstructure:"points.size"`
	LinesSize     uint64  `mapstructure:"lines.size"`
	PolygonsSize  uint64  `mapstructure:"polygons.size"`
	PlotsSize     uint64  `mapstructure:"plots.size"`
	Strategy      string  `mapstructure:"strategy"`
	SimpleThresh  float64 `mapstructure:"strategy.simple.threshold"`
	TwoStepStack  float64 `mapstructure:"strategy.twostep.stacked"`
	TwoStepImm    float64 `mapstructure:"strategy.twostep.immediate"`
	ReorgStrategy string  `mapstructure:"reorg.strategy"`
}

// NodeServerConfig carries nodeserver.* keys: this node's announced
// host, listening port, and worker pool size.
type NodeServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Threads int    `mapstructure:"threads"`
}

// Config is the complete recognized configuration surface.
type Config struct {
	IndexServer IndexServerConfig `mapstructure:"indexserver"`
	Cache       CacheConfig       `mapstructure:"cache"`
	NodeServer  NodeServerConfig  `mapstructure:"nodeserver"`
}

// Strategies unpacks the strategy name and its three possible
// thresholds together, for callers building a strategy.Strategy via
// strategy.ByName.
func (c CacheConfig) Strategies() (string, float64, float64, float64) {
	return c.Strategy, c.SimpleThresh, c.TwoStepStack, c.TwoStepImm
}

// Load builds a viper instance seeded with every recognized default, layers in an optional config file named stcache (searched in the working
// directory, ./config, and /etc/stcache, and always parsed as YAML), then
// environment variables prefixed STCACHE_ with dots replaced by
// underscores, and unmarshals the result.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("indexserver.host", "127.0.0.1")
	v.SetDefault("indexserver.port.frontend", 10000)
	v.SetDefault("indexserver.port.node", 10001)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.raster.size", uint64(1<<30))
	v.SetDefault("cache.points.size", uint64(1<<28))
	v.SetDefault("cache.lines.size", uint64(1<<28))
	v.SetDefault("cache.polygons.size", uint64(1<<28))
	v.SetDefault("cache.plots.size", uint64(1<<26))
	v.SetDefault("cache.strategy", "simple")
	v.SetDefault("cache.strategy.simple.threshold", 2.0)
	v.SetDefault("cache.strategy.twostep.stacked", 3.0)
	v.SetDefault("cache.strategy.twostep.immediate", 2.0)
	v.SetDefault("cache.reorg.strategy", "capacity")

	v.SetDefault("nodeserver.host", "127.0.0.1")
	v.SetDefault("nodeserver.port", 10002)
	v.SetDefault("nodeserver.threads", 1)

	v.SetConfigName("stcache")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/stcache")

	v.AutomaticEnv()
	v.SetEnvPrefix("STCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	cfg.IndexServer.Host = v.GetString("indexserver.host")
	cfg.IndexServer.PortFrontend = v.GetInt("indexserver.port.frontend")
	cfg.IndexServer.PortNode = v.GetInt("indexserver.port.node")

	cfg.Cache.Enabled = v.GetBool("cache.enabled")
	cfg.Cache.RasterSize = v.GetUint64("cache.raster.size")
	cfg.Cache.PointsSize = v.GetUint64("cache.points.size")
	cfg.Cache.LinesSize = v.GetUint64("cache.lines.size")
	cfg.Cache.PolygonsSize = v.GetUint64("cache.polygons.size")
	cfg.Cache.PlotsSize = v.GetUint64("cache.plots.size")
	cfg.Cache.Strategy = v.GetString("cache.strategy")
	// The threshold defaults registered under cache.strategy.* replace
	// the "simple" default of cache.strategy itself with a map, so an
	// unset strategy reads back empty here.
	if cfg.Cache.Strategy == "" {
		cfg.Cache.Strategy = "simple"
	}
	cfg.Cache.SimpleThresh = v.GetFloat64("cache.strategy.simple.threshold")
	cfg.Cache.TwoStepStack = v.GetFloat64("cache.strategy.twostep.stacked")
	cfg.Cache.TwoStepImm = v.GetFloat64("cache.strategy.twostep.immediate")
	cfg.Cache.ReorgStrategy = v.GetString("cache.reorg.strategy")

	cfg.NodeServer.Host = v.GetString("nodeserver.host")
	cfg.NodeServer.Port = v.GetInt("nodeserver.port")
	cfg.NodeServer.Threads = v.GetInt("nodeserver.threads")

	return &cfg, nil
}
