package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Serialize converts a vector to a length-prefixed float32 byte blob:
// a 4-byte little-endian count, followed by that many 4-byte float32s.
// This is the store representation for the conversations table's
// embedding column.
func Serialize(v []float32) []byte {
	buf := make([]byte, 4+4*len(v))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], math.Float32bits(f))
	}
	return buf
}

// Deserialize reverses Serialize. It returns an error if the blob is
// truncated or its length prefix doesn't match the remaining bytes.
func Deserialize(blob []byte) ([]float32, error) {
	if len(blob) < 4 {
		return nil, fmt.Errorf("embedding blob too short: %d bytes", len(blob))
	}
	n := binary.LittleEndian.Uint32(blob[0:4])
	want := 4 + 4*int(n)
	if len(blob) != want {
		return nil, fmt.Errorf("embedding blob length mismatch: want %d bytes for %d floats, got %d", want, n, len(blob))
	}
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4+4*i : 8+4*i]))
	}
	return v, nil
}
