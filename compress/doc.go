// Package compress provides the block codecs used by the dataset chunk
// store. A chunk's serialized column payload is compressed as a single
// block before it is written, and decompressed as a single block when the
// chunk is read back.
//
// Four codecs are available, selected by format.CompressionType:
//
//   - None: bypass, for already-small datasets and debugging
//   - S2: fastest, moderate ratio, good default for scoring pipelines
//   - LZ4: fast block compression with bounded decompression buffers
//   - Zstd: best ratio, for archived training datasets
//
// The Zstd codec uses valyala/gozstd when cgo is available and falls back
// to the pure-Go klauspost/compress implementation otherwise.
package compress
