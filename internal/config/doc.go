// Package config loads the server configuration through viper: dotted
// keys (indexserver.host, cache.raster.size, ...), an optional config
// file, and environment variable overrides (STCACHE_ prefix, with the
// dots of a key written as underscores in the variable name).
package config
