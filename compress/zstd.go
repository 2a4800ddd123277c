package compress

// ZstdCodec compresses chunk payloads with Zstandard.
//
// Zstd offers the best ratio of the built-in codecs and is the right
// choice for archived training datasets that are written once and read
// many times. Two implementations back this type: a cgo binding
// (valyala/gozstd) and a pure-Go fallback (klauspost/compress/zstd),
// selected at build time.
type ZstdCodec struct{}

var _ Codec = (*ZstdCodec)(nil)

// NewZstdCodec creates a new Zstd codec with default settings.
func NewZstdCodec() ZstdCodec {
	return ZstdCodec{}
}
