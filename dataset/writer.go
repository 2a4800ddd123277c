package dataset

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/arloliu/ratetab/compress"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
	"github.com/arloliu/ratetab/internal/hash"
	"github.com/arloliu/ratetab/internal/options"
)

const (
	// fileVersion is the current dataset file format version.
	fileVersion = 0x1

	// headerSize is the fixed file header size in bytes:
	// 4 magic + 1 version + 1 compression + 2 reserved.
	headerSize = 8

	// chunkHeaderSize is the per-chunk header size in bytes:
	// 4 row count + 4 payload length + 8 checksum.
	chunkHeaderSize = 16

	// DefaultChunkRows is the row-group size used when a dataset is
	// written without an explicit chunking choice.
	DefaultChunkRows = 100_000
)

// fileMagic identifies a ratetab dataset file.
var fileMagic = [4]byte{'R', 'T', 'D', '1'}

// colMeta pins the column layout of a file to that of its first chunk.
type colMeta struct {
	name string
	kind format.VariableKind
}

// Writer streams dataset chunks into a new file.
//
// Output is staged in a private <path>.tmp file. Close consolidates the
// staged chunks into the final path only if every WriteChunk succeeded;
// Discard (or a failed Close) removes the staging file so an interrupted
// run leaves nothing behind. The final path must not already exist when
// the Writer is created.
type Writer struct {
	file        *os.File
	finalPath   string
	tmpPath     string
	codec       compress.Codec
	compression format.CompressionType
	layout      []colMeta
	rows        int
	closed      bool
}

// WriterOption configures a Writer.
type WriterOption = options.Option[*Writer]

// WithCompression selects the chunk payload codec. The default is S2.
func WithCompression(compression format.CompressionType) WriterOption {
	return options.New(func(w *Writer) error {
		codec, err := compress.GetCodec(compression)
		if err != nil {
			return err
		}
		w.compression = compression
		w.codec = codec

		return nil
	})
}

// NewWriter creates a Writer targeting path.
//
// Parameters:
//   - path: Final output location; must not already exist
//   - opts: Optional configuration (see WithCompression)
//
// Returns:
//   - *Writer: The created writer
//   - error: errs.ErrArtifactExists if path exists, or a staging error
func NewWriter(path string, opts ...WriterOption) (*Writer, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrArtifactExists, path)
	}

	w := &Writer{
		finalPath:   path,
		tmpPath:     path + ".tmp",
		compression: format.CompressionS2,
		codec:       compress.NewS2Codec(),
	}
	if err := options.Apply(w, opts...); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(w.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	w.file = file

	header := make([]byte, headerSize)
	copy(header, fileMagic[:])
	header[4] = fileVersion
	header[5] = byte(w.compression)
	if _, err := w.file.Write(header); err != nil {
		w.Discard()
		return nil, fmt.Errorf("failed to write file header: %w", err)
	}

	return w, nil
}

// WriteChunk appends one row-group chunk. The first chunk fixes the column
// layout; later chunks must match it exactly.
func (w *Writer) WriteChunk(ds *Dataset) error {
	if w.closed {
		return fmt.Errorf("writer for %s is closed", w.finalPath)
	}

	if w.layout == nil {
		w.layout = make([]colMeta, 0, ds.NumCols())
		for _, col := range ds.Columns() {
			w.layout = append(w.layout, colMeta{name: col.Name, kind: col.Kind})
		}
	} else if err := w.checkLayout(ds); err != nil {
		return err
	}

	payload := marshalChunk(ds)
	compressed, err := w.codec.Compress(payload)
	if err != nil {
		return fmt.Errorf("failed to compress chunk: %w", err)
	}

	header := make([]byte, chunkHeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(ds.NumRows()))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(compressed)))
	binary.LittleEndian.PutUint64(header[8:16], hash.Sum(compressed))

	if _, err := w.file.Write(header); err != nil {
		return fmt.Errorf("failed to write chunk header: %w", err)
	}
	if _, err := w.file.Write(compressed); err != nil {
		return fmt.Errorf("failed to write chunk payload: %w", err)
	}
	w.rows += ds.NumRows()

	return nil
}

// Rows returns the number of rows written so far.
func (w *Writer) Rows() int { return w.rows }

// Close flushes the staged chunks and renames them into the final path.
// On any failure the staging file is removed and the final path is left
// untouched.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.file.Sync(); err != nil {
		w.removeStaging()
		return fmt.Errorf("failed to sync staging file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.removeStaging()
		return fmt.Errorf("failed to close staging file: %w", err)
	}

	// Re-check: the destination may have appeared since NewWriter.
	if _, err := os.Stat(w.finalPath); err == nil {
		w.removeStaging()
		return fmt.Errorf("%w: %s", errs.ErrArtifactExists, w.finalPath)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		w.removeStaging()
		return fmt.Errorf("failed to consolidate output: %w", err)
	}

	return nil
}

// Discard abandons the write and removes the staging file. Safe to call
// after Close, where it does nothing.
func (w *Writer) Discard() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.file.Close()
	w.removeStaging()
}

func (w *Writer) removeStaging() {
	_ = os.Remove(w.tmpPath)
}

func (w *Writer) checkLayout(ds *Dataset) error {
	if len(w.layout) != ds.NumCols() {
		return fmt.Errorf("%w: chunk has %d columns, file has %d",
			errs.ErrColumnMismatch, ds.NumCols(), len(w.layout))
	}
	for i, col := range ds.Columns() {
		if w.layout[i].name != col.Name || w.layout[i].kind != col.Kind {
			return fmt.Errorf("%w: column %d is %s(%s), file expects %s(%s)",
				errs.ErrColumnMismatch, i, col.Name, col.Kind, w.layout[i].name, w.layout[i].kind)
		}
	}

	return nil
}

// marshalChunk serializes a chunk payload:
//
//	colCount uint16
//	per column: uvarint(len(name)) name-bytes, kind byte
//	per column data:
//	  numeric:     rows * 8 bytes (IEEE-754 bits, little endian)
//	  categorical: per value uvarint(len) + bytes
func marshalChunk(ds *Dataset) []byte {
	size := 2
	for _, col := range ds.Columns() {
		size += len(col.Name) + 2
		if col.Kind == format.KindNumeric {
			size += 8 * len(col.Floats)
		} else {
			for _, s := range col.Strings {
				size += len(s) + 2
			}
		}
	}

	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(ds.NumCols()))
	for _, col := range ds.Columns() {
		buf = binary.AppendUvarint(buf, uint64(len(col.Name)))
		buf = append(buf, col.Name...)
		buf = append(buf, byte(col.Kind))
	}
	for _, col := range ds.Columns() {
		if col.Kind == format.KindNumeric {
			for _, v := range col.Floats {
				buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
			}
		} else {
			for _, s := range col.Strings {
				buf = binary.AppendUvarint(buf, uint64(len(s)))
				buf = append(buf, s...)
			}
		}
	}

	return buf
}
