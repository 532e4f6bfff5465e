// Package wire implements the binary framing primitives every
// connection speaks: fixed-width little-endian scalars, 64-bit
// length-prefixed strings and blobs, and length-prefixed vectors of
// either. There is no top-level message-length frame; callers encode
// and decode an exact, known sequence of fields per message, with
// internal/proto owning the canonical field ordering.
//
// Reader wraps any io.Reader (typically a buffered net.Conn). Writer
// buffers scalar and length-prefixed fields in memory and additionally
// supports linking one externally-owned blob so the large payload of a
// raster/feature delivery is written straight to the connection on
// Flush instead of being copied into the Writer's own buffer.
package wire
