// Package dataset provides the columnar table type that every ratetab
// operation consumes and produces, together with a chunked on-disk format
// used to stream large datasets through scoring without holding them in
// memory.
//
// # In-memory layout
//
// A Dataset is a rectangle of named columns. Each column is either
// categorical (string values) or numeric (float64 values); all columns
// have the same row count. Column order is significant and preserved, so
// encoding and scoring are deterministic.
//
// # File format
//
// A dataset file is a fixed little-endian header followed by a sequence of
// self-contained chunks. Each chunk carries its own row count, a
// compressed column payload and an xxHash64 checksum of the compressed
// bytes, so a truncated or corrupted file is detected on read. All chunks
// of a file share the column layout of the first chunk.
//
// Writers stage output in a private temporary file that is renamed into
// place only when Close succeeds, and removed otherwise. A destination
// path that already exists is an error: existing artifacts are never
// overwritten.
//
// Reading is streamed:
//
//	reader, err := dataset.NewReader("scored.rtd")
//	if err != nil {
//	    return err
//	}
//	defer reader.Close()
//	for chunk, err := range reader.Chunks() {
//	    if err != nil {
//	        return err
//	    }
//	    process(chunk)
//	}
package dataset
