// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package probe

import "github.com/sourceflow/rtpingest/ingest/wire"

// detectEndianness counts how often each byte position within a sample
// changes between consecutive samples; the most-volatile byte position
// is taken to be the least-significant byte. Byte 0 most volatile means
// little-endian, the last byte most volatile means big-endian; when a
// middle byte is most volatile, the first/last change ratio decides,
// defaulting to big-endian.
func detectEndianness(buf []byte, bytesPerSample int) wire.Endianness {
	if bytesPerSample <= 1 || len(buf) < bytesPerSample*2 {
		return wire.BigEndian
	}

	n := len(buf) / bytesPerSample
	if n < 2 {
		return wire.BigEndian
	}

	changes := make([]int, bytesPerSample)
	for i := 1; i < n; i++ {
		prevBase := (i - 1) * bytesPerSample
		base := i * bytesPerSample
		for b := 0; b < bytesPerSample; b++ {
			if buf[base+b] != buf[prevBase+b] {
				changes[b]++
			}
		}
	}

	mostVolatile := 0
	for b := 1; b < bytesPerSample; b++ {
		if changes[b] > changes[mostVolatile] {
			mostVolatile = b
		}
	}

	switch mostVolatile {
	case 0:
		return wire.LittleEndian
	case bytesPerSample - 1:
		return wire.BigEndian
	default:
		first := float64(changes[0])
		last := float64(changes[bytesPerSample-1])
		if last == 0 {
			return wire.BigEndian
		}
		ratio := first / last
		if ratio > 1.3 {
			return wire.LittleEndian
		}
		if ratio < 0.77 {
			return wire.BigEndian
		}
		return wire.BigEndian
	}
}
