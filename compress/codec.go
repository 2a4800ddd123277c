package compress

import (
	"fmt"

	"github.com/arloliu/ratetab/format"
)

// Codec compresses and decompresses dataset chunk payloads.
//
// Implementations must be safe for concurrent use. Returned slices are
// newly allocated and owned by the caller (except the no-op codec, which
// returns its input unchanged); input slices are never modified.
type Codec interface {
	// Compress compresses the payload and returns the compressed block.
	Compress(data []byte) ([]byte, error)
	// Decompress reverses Compress. It returns an error if the block is
	// corrupted or was produced by a different codec.
	Decompress(data []byte) ([]byte, error)
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: NewNoOpCodec(),
	format.CompressionZstd: NewZstdCodec(),
	format.CompressionS2:   NewS2Codec(),
	format.CompressionLZ4:  NewLZ4Codec(),
}

// GetCodec retrieves the built-in Codec for the specified compression type.
//
// Parameters:
//   - compressionType: Type of compression (None, Zstd, S2, or LZ4)
//
// Returns:
//   - Codec: Codec instance for the specified type
//   - error: Unsupported compression type error
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}
