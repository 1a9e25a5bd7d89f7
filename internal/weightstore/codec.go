package weightstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/veghadev/fdrl-signals/go-controller/internal/policy"
)

// #region weight-encoding

// encodeWeights serializes a weight set as a flat frame sequence, one frame
// per tensor in sorted name order so equal sets encode identically:
// name length (uint32), name bytes, rows (uint32), cols (uint32), then
// rows*cols float32 values, all little-endian.
func encodeWeights(w policy.Weights) ([]byte, error) {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	scratch := make([]byte, 4)
	putU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(scratch, v)
		buf.Write(scratch)
	}

	putU32(uint32(len(names)))
	for _, name := range names {
		t := w[name]
		if len(t.Data) != t.Rows*t.Cols {
			return nil, fmt.Errorf("tensor %s: %d values for %dx%d shape", name, len(t.Data), t.Rows, t.Cols)
		}
		putU32(uint32(len(name)))
		buf.WriteString(name)
		putU32(uint32(t.Rows))
		putU32(uint32(t.Cols))
		for _, f := range t.Data {
			putU32(math.Float32bits(f))
		}
	}
	return buf.Bytes(), nil
}

// decodeWeights reverses encodeWeights.
func decodeWeights(b []byte) (policy.Weights, error) {
	off := 0
	u32 := func() (uint32, error) {
		if off+4 > len(b) {
			return 0, fmt.Errorf("truncated blob at offset %d", off)
		}
		v := binary.LittleEndian.Uint32(b[off:])
		off += 4
		return v, nil
	}

	count, err := u32()
	if err != nil {
		return nil, err
	}
	w := make(policy.Weights, count)
	for i := uint32(0); i < count; i++ {
		nameLen, err := u32()
		if err != nil {
			return nil, err
		}
		if off+int(nameLen) > len(b) {
			return nil, fmt.Errorf("truncated tensor name at offset %d", off)
		}
		name := string(b[off : off+int(nameLen)])
		off += int(nameLen)

		rows, err := u32()
		if err != nil {
			return nil, err
		}
		cols, err := u32()
		if err != nil {
			return nil, err
		}
		size := int(rows) * int(cols)
		t := policy.Tensor{Rows: int(rows), Cols: int(cols), Data: make([]float32, size)}
		for j := 0; j < size; j++ {
			bits, err := u32()
			if err != nil {
				return nil, err
			}
			t.Data[j] = math.Float32frombits(bits)
		}
		w[name] = t
	}
	return w, nil
}

// #endregion weight-encoding
