package ec

import "github.com/dlbridge/dlbridge/internal/model"

// decodeByteRLE expands a byte-RLE stream per the wire contract: a triple
// [v, v, n] expands to n copies of v; an isolated trailing byte emits
// itself; a terminal [v, w] with v != w emits both literally; a terminal
// [v, v] with no trailing run length is treated as two literal bytes
// (an incomplete run, degraded rather than rejected).
func decodeByteRLE(in []byte) []byte {
	out := make([]byte, 0, len(in))
	i := 0
	for i < len(in) {
		v := in[i]
		if i+1 >= len(in) {
			out = append(out, v)
			i++
			continue
		}
		w := in[i+1]
		if v != w {
			out = append(out, v)
			i++
			continue
		}
		// v == w: either a full [v,v,n] triple or an incomplete terminal pair.
		if i+2 >= len(in) {
			out = append(out, v, w)
			i += 2
			continue
		}
		n := in[i+2]
		for k := uint8(0); k < n; k++ {
			out = append(out, v)
		}
		i += 3
	}
	return out
}

// encodeByteRLE is the inverse of decodeByteRLE: runs of length >= 2 are
// emitted as [v, v, n] triples (capped at 255 per triple, continuing with
// another triple for longer runs); single bytes are emitted literally.
func encodeByteRLE(in []byte) []byte {
	out := make([]byte, 0, len(in))
	i := 0
	for i < len(in) {
		v := in[i]
		j := i + 1
		for j < len(in) && in[j] == v {
			j++
		}
		runLen := j - i
		if runLen < 2 {
			for k := 0; k < runLen; k++ {
				out = append(out, v)
			}
		} else {
			remaining := runLen
			for remaining > 0 {
				chunk := remaining
				if chunk > 255 {
					chunk = 255
				}
				out = append(out, v, v, uint8(chunk))
				remaining -= chunk
			}
		}
		i = j
	}
	return out
}

// decodeUint64RLE byte-RLE-decodes in, then reinterprets the result as a
// column-major byte-interleaved matrix of width size = len/8: byte j of
// value i lives at position i + j*size, little-endian across the 8 bytes.
func decodeUint64RLE(in []byte) []uint64 {
	decoded := decodeByteRLE(in)
	size := len(decoded) / 8
	if size == 0 {
		return nil
	}
	out := make([]uint64, size)
	for i := 0; i < size; i++ {
		var v uint64
		for j := 0; j < 8; j++ {
			v |= uint64(decoded[i+j*size]) << (8 * uint(j))
		}
		out[i] = v
	}
	return out
}

// encodeUint64RLE is the inverse of decodeUint64RLE.
func encodeUint64RLE(values []uint64) []byte {
	size := len(values)
	plain := make([]byte, size*8)
	for i, v := range values {
		for j := 0; j < 8; j++ {
			plain[i+j*size] = byte(v >> (8 * uint(j)))
		}
	}
	return encodeByteRLE(plain)
}

// DecodeSegments turns the three RLE-compressed engine buffers into the
// unified per-part source count and gap/request range lists. Part size is
// fixed at PartSize bytes; gap and request buffers are pairs of uint64
// offsets forming half-open [start,end) ranges.
func DecodeSegments(partStatusRLE, gapStatusRLE, reqStatusRLE []byte) *model.SegmentInfo {
	si := &model.SegmentInfo{
		PartStatus: decodeByteRLE(partStatusRLE),
	}
	gapValues := decodeUint64RLE(gapStatusRLE)
	for i := 0; i+1 < len(gapValues); i += 2 {
		si.GapStatus = append(si.GapStatus, model.GapRange{Start: gapValues[i], End: gapValues[i+1]})
	}
	reqValues := decodeUint64RLE(reqStatusRLE)
	for i := 0; i+1 < len(reqValues); i += 2 {
		si.ReqStatus = append(si.ReqStatus, model.ReqRange{Start: reqValues[i], End: reqValues[i+1]})
	}
	return si
}
