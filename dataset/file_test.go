package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ratetab/errs"
	"github.com/arloliu/ratetab/format"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	compressions := []format.CompressionType{
		format.CompressionNone,
		format.CompressionZstd,
		format.CompressionS2,
		format.CompressionLZ4,
	}

	for _, ct := range compressions {
		t.Run(ct.String(), func(t *testing.T) {
			ds := makeDataset(t)
			path := filepath.Join(t.TempDir(), "rows.rtd")

			require.NoError(t, WriteAll(path, ds, 2, WithCompression(ct)))

			got, err := ReadAll(path)
			require.NoError(t, err)
			require.Equal(t, ds.NumRows(), got.NumRows())
			require.Equal(t, ds.ColumnNames(), got.ColumnNames())
			require.Equal(t, ds.Column("Region").Strings, got.Column("Region").Strings)
			require.Equal(t, ds.Column("Age").Floats, got.Column("Age").Floats)
			require.Equal(t, ds.Column("Exposure").Floats, got.Column("Exposure").Floats)
		})
	}
}

func TestWriter_ChunkOrderPreserved(t *testing.T) {
	ds := makeDataset(t)
	path := filepath.Join(t.TempDir(), "rows.rtd")

	writer, err := NewWriter(path)
	require.NoError(t, err)
	for chunk := range ds.ChunkBy(1) {
		require.NoError(t, writer.WriteChunk(chunk))
	}
	require.Equal(t, ds.NumRows(), writer.Rows())
	require.NoError(t, writer.Close())

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	var ages []float64
	for chunk, err := range reader.Chunks() {
		require.NoError(t, err)
		require.Equal(t, 1, chunk.NumRows())
		ages = append(ages, chunk.Column("Age").Floats[0])
	}
	require.Equal(t, ds.Column("Age").Floats, ages)
}

func TestWriter_ExistingDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.rtd")
	require.NoError(t, os.WriteFile(path, []byte("occupied"), 0o644))

	_, err := NewWriter(path)
	require.ErrorIs(t, err, errs.ErrArtifactExists)
}

func TestWriter_DiscardLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.rtd")

	writer, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.WriteChunk(makeDataset(t)))
	writer.Discard()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "discard must remove the staging file")
}

func TestWriter_LayoutFixedByFirstChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.rtd")

	writer, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.WriteChunk(makeDataset(t)))

	other := New()
	require.NoError(t, other.AddNumericColumn("Age", []float64{1}))
	require.ErrorIs(t, writer.WriteChunk(other), errs.ErrColumnMismatch)
	writer.Discard()
}

func TestReader_InvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.rtd")
	require.NoError(t, os.WriteFile(path, []byte("not a dataset file"), 0o644))

	_, err := NewReader(path)
	require.ErrorIs(t, err, errs.ErrInvalidMagic)
}

func TestReader_ChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.rtd")
	require.NoError(t, WriteAll(path, makeDataset(t), 0, WithCompression(format.CompressionNone)))

	// Flip a byte inside the chunk payload, past the file and chunk headers.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer reader.Close()

	for _, err := range reader.Chunks() {
		require.ErrorIs(t, err, errs.ErrChecksumMismatch)
		break
	}
}

func TestReadAll_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.rtd")

	writer, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	_, err = ReadAll(path)
	require.ErrorIs(t, err, errs.ErrEmptyDataset)
}
