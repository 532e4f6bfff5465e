// Package cachecube defines the spatio-temporal data model shared by the
// cache entry index (cacheindex), the node payload store (nodestore), and
// the wire protocol (proto): query cubes tagged with a coordinate
// reference system and time type, resolution-aware cache cubes for
// raster results, and the cache entry / key / reference types that tie a
// semantic id and an entry id to a node.
//
// None of the types here own a mutex; they are immutable value types
// passed by value between packages and copied across connections.
package cachecube
