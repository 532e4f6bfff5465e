// Package puzzle implements component C9: composing one query's answer
// from a set of existing cache references plus freshly computed
// remainder slabs.
//
// For raster results, RasterAssembler allocates an output buffer sized
// to the query's pixel resolution and blits remainder rasters and
// reference rasters into it in a fixed order (remainders first, then
// references in the order supplied), so overlapping contributions
// produce a reproducible result. For feature collections (point/line/
// polygon), AssembleFeatures concatenates contributions whose extent
// intersects the query.
//
// VerifyCoverage checks that the union of
// contributions tiles the query cube exactly, reusing cube.DissectBy
// to peel contributions off the query one at a time; anything left
// over after every contribution is applied means the puzzle failed to
// cover its target and ErrPuzzleFailure is returned.
package puzzle
