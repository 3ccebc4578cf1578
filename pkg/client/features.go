package client

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Precision selects how reference features are serialized for upload.
type Precision string

const (
	// Float32 sends features as plain JSON number arrays.
	Float32 Precision = "float32"
	// Float16 packs each row into little-endian IEEE 754 half floats,
	// base64 encoded. Halves the payload for large reference sets. Values
	// beyond ±65504 are rejected; values too small for a half float round
	// toward zero.
	Float16 Precision = "float16"
)

// encodedFeatures is the wire form of a feature batch.
type encodedFeatures struct {
	Precision Precision
	Dims      int
	Rows      interface{} // [][]float32 or []string
}

func encodeFeatures(features [][]float32, precision Precision) (encodedFeatures, error) {
	if len(features) == 0 {
		return encodedFeatures{}, fmt.Errorf("no features to upload")
	}
	dims := len(features[0])
	for i, row := range features {
		if len(row) != dims {
			return encodedFeatures{}, fmt.Errorf("feature row %d has %d values, expected %d", i, len(row), dims)
		}
		for _, v := range row {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return encodedFeatures{}, fmt.Errorf("feature row %d contains a non-finite value", i)
			}
		}
	}

	switch precision {
	case "", Float32:
		return encodedFeatures{Precision: Float32, Dims: dims, Rows: features}, nil
	case Float16:
		rows := make([]string, len(features))
		buf := make([]byte, 2*dims)
		for i, row := range features {
			for j, v := range row {
				h := float16.Fromfloat32(v)
				if h.IsInf(0) {
					return encodedFeatures{}, fmt.Errorf("feature row %d column %d: %g is out of float16 range", i, j, v)
				}
				binary.LittleEndian.PutUint16(buf[2*j:], h.Bits())
			}
			rows[i] = base64.StdEncoding.EncodeToString(buf)
		}
		return encodedFeatures{Precision: Float16, Dims: dims, Rows: rows}, nil
	default:
		return encodedFeatures{}, fmt.Errorf("unsupported precision %q", precision)
	}
}

// DecodeFloat16Row reverses the Float16 packing of a single row.
func DecodeFloat16Row(s string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid float16 row: %w", err)
	}
	if len(raw)%2 != 0 {
		return nil, fmt.Errorf("invalid float16 row: odd byte length %d", len(raw))
	}
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
	}
	return out, nil
}
