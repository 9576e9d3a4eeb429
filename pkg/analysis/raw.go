package analysis

import (
	"encoding/binary"
	"math"
)

// DecodeRaw interprets data as native-endian float64 words and keeps the
// finite ones. A trailing partial word is ignored. When no word decodes to a
// finite value, every byte is returned as an unsigned sample in [0, 255].
func DecodeRaw(data []byte) []float64 {
	if len(data) == 0 {
		return nil
	}

	values := make([]float64, 0, len(data)/8)
	for off := 0; off+8 <= len(data); off += 8 {
		v := math.Float64frombits(binary.NativeEndian.Uint64(data[off : off+8]))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		values = append(values, v)
	}
	if len(values) > 0 {
		return values
	}

	values = make([]float64, len(data))
	for i, b := range data {
		values[i] = float64(b)
	}
	return values
}

// EncodeRaw is the inverse of the float64 branch of DecodeRaw.
func EncodeRaw(values []float64) []byte {
	out := make([]byte, 8*len(values))
	for i, v := range values {
		binary.NativeEndian.PutUint64(out[8*i:], math.Float64bits(v))
	}
	return out
}
