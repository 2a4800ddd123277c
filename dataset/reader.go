package dataset

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"os"

	"github.com/arloliu/ratetab/compress"
	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
	"github.com/arloliu/ratetab/internal/hash"
)

// Reader streams row-group chunks from a dataset file.
//
// Chunks are yielded strictly in file order, which matches the row order
// the file was written in.
type Reader struct {
	file        *os.File
	buf         *bufio.Reader
	codec       compress.Codec
	compression format.CompressionType
}

// NewReader opens a dataset file and validates its header.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}

	buf := bufio.NewReader(file)
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(buf, header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read file header: %w", err)
	}
	if [4]byte(header[:4]) != fileMagic {
		file.Close()
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidMagic, path)
	}
	if header[4] != fileVersion {
		file.Close()
		return nil, fmt.Errorf("unsupported dataset file version %d", header[4])
	}

	compression := format.CompressionType(header[5])
	codec, err := compress.GetCodec(compression)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &Reader{
		file:        file,
		buf:         buf,
		codec:       codec,
		compression: compression,
	}, nil
}

// Compression returns the codec the file was written with.
func (r *Reader) Compression() format.CompressionType { return r.compression }

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Chunks yields each row-group chunk in file order. Iteration stops at the
// first error; the error is yielded with a nil dataset.
func (r *Reader) Chunks() iter.Seq2[*Dataset, error] {
	return func(yield func(*Dataset, error) bool) {
		for {
			chunk, err := r.readChunk()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// readChunk reads and verifies one chunk. Returns io.EOF at end of file.
func (r *Reader) readChunk() (*Dataset, error) {
	header := make([]byte, chunkHeaderSize)
	if _, err := io.ReadFull(r.buf, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("failed to read chunk header: %w", err)
	}

	rows := int(binary.LittleEndian.Uint32(header[0:4]))
	payloadLen := int(binary.LittleEndian.Uint32(header[4:8]))
	checksum := binary.LittleEndian.Uint64(header[8:16])

	compressed := make([]byte, payloadLen)
	if _, err := io.ReadFull(r.buf, compressed); err != nil {
		return nil, fmt.Errorf("failed to read chunk payload: %w", err)
	}
	if hash.Sum(compressed) != checksum {
		return nil, errs.ErrChecksumMismatch
	}

	payload, err := r.codec.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress chunk: %w", err)
	}

	return unmarshalChunk(payload, rows)
}

// unmarshalChunk reverses marshalChunk.
func unmarshalChunk(payload []byte, rows int) (*Dataset, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("chunk payload truncated: %d bytes", len(payload))
	}
	colCount := int(binary.LittleEndian.Uint16(payload[0:2]))
	pos := 2

	type colHeader struct {
		name string
		kind format.VariableKind
	}
	headers := make([]colHeader, colCount)
	for i := range colCount {
		nameLen, n := binary.Uvarint(payload[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("chunk payload corrupted at column %d name", i)
		}
		pos += n
		if pos+int(nameLen)+1 > len(payload) {
			return nil, fmt.Errorf("chunk payload truncated at column %d", i)
		}
		headers[i].name = string(payload[pos : pos+int(nameLen)])
		pos += int(nameLen)
		headers[i].kind = format.VariableKind(payload[pos])
		pos++
	}

	ds := New()
	for i := range colCount {
		switch headers[i].kind {
		case format.KindNumeric:
			if pos+8*rows > len(payload) {
				return nil, fmt.Errorf("chunk payload truncated in column %q", headers[i].name)
			}
			values := make([]float64, rows)
			for j := range rows {
				values[j] = math.Float64frombits(binary.LittleEndian.Uint64(payload[pos : pos+8]))
				pos += 8
			}
			if err := ds.AddNumericColumn(headers[i].name, values); err != nil {
				return nil, err
			}
		case format.KindCategorical:
			values := make([]string, rows)
			for j := range rows {
				strLen, n := binary.Uvarint(payload[pos:])
				if n <= 0 || pos+n+int(strLen) > len(payload) {
					return nil, fmt.Errorf("chunk payload corrupted in column %q", headers[i].name)
				}
				pos += n
				values[j] = string(payload[pos : pos+int(strLen)])
				pos += int(strLen)
			}
			if err := ds.AddStringColumn(headers[i].name, values); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("unknown column kind 0x%x in column %q", uint8(headers[i].kind), headers[i].name)
		}
	}

	return ds, nil
}

// ReadAll reads a dataset file into memory, concatenating all chunks.
func ReadAll(path string) (*Dataset, error) {
	reader, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var out *Dataset
	for chunk, err := range reader.Chunks() {
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = chunk
			continue
		}
		if err := out.Append(chunk); err != nil {
			return nil, err
		}
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrEmptyDataset, path)
	}

	return out, nil
}

// WriteAll writes a dataset to path in chunks of chunkRows rows.
// A non-positive chunkRows uses DefaultChunkRows.
func WriteAll(path string, ds *Dataset, chunkRows int, opts ...WriterOption) error {
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}

	writer, err := NewWriter(path, opts...)
	if err != nil {
		return err
	}

	for chunk := range ds.ChunkBy(chunkRows) {
		if err := writer.WriteChunk(chunk); err != nil {
			writer.Discard()
			return err
		}
	}

	return writer.Close()
}
