package wire

import "errors"

// ErrStringTooLarge guards against a corrupt or hostile length prefix
// causing an attempt to allocate an unreasonable buffer.
var ErrStringTooLarge = errors.New("wire: string or blob length exceeds MaxFieldLen")

// MaxFieldLen bounds any single string/blob length prefix (and vector
// element count) this package will honor: 16 GiB. Real payloads are
// raster tiles and feature collections, far below this size; the
// bound rejects only the absurd lengths a desynced stream produces,
// and a length under it is still allocated in full.
const MaxFieldLen = 1 << 34
