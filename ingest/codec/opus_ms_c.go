//go:build with_opus_ms

// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package codec

/*
#cgo pkg-config: opus
#include <opus/opus_multistream.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// multistreamDecoder wraps libopus's multistream decoder directly, since
// the Go binding only exposes the single-stream surface. Same library the
// binding links against, so no extra install is needed beyond the
// with_opus_ms build tag.
type multistreamDecoder struct {
	dec      *C.OpusMSDecoder
	channels int
}

func newMultistreamDecoder(sampleRate, channels, streams, coupled int, mapping []byte) (*multistreamDecoder, error) {
	if len(mapping) != channels {
		return nil, fmt.Errorf("opus: channel mapping has %d entries for %d channels", len(mapping), channels)
	}

	var cerr C.int
	dec := C.opus_multistream_decoder_create(
		C.opus_int32(sampleRate),
		C.int(channels),
		C.int(streams),
		C.int(coupled),
		(*C.uchar)(unsafe.Pointer(&mapping[0])),
		&cerr,
	)
	if cerr != C.OPUS_OK || dec == nil {
		return nil, fmt.Errorf("opus: multistream decoder create failed: code %d", int(cerr))
	}
	return &multistreamDecoder{dec: dec, channels: channels}, nil
}

// Decode decodes one Opus packet into pcm, returning the number of
// samples per channel.
func (d *multistreamDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if d.dec == nil {
		return 0, fmt.Errorf("opus: multistream decoder already closed")
	}
	if len(data) == 0 || len(pcm) < d.channels {
		return 0, fmt.Errorf("opus: empty packet or undersized pcm buffer")
	}

	n := C.opus_multistream_decode(
		d.dec,
		(*C.uchar)(unsafe.Pointer(&data[0])),
		C.opus_int32(len(data)),
		(*C.opus_int16)(unsafe.Pointer(&pcm[0])),
		C.int(len(pcm)/d.channels),
		0,
	)
	if n < 0 {
		return 0, fmt.Errorf("opus: multistream decode failed: code %d", int(n))
	}
	return int(n), nil
}

func (d *multistreamDecoder) Close() {
	if d.dec != nil {
		C.opus_multistream_decoder_destroy(d.dec)
		d.dec = nil
	}
}
