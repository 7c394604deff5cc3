//go:build !with_opus_ms

// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package codec

import "errors"

var errNoMultistream = errors.New("opus: multistream decoding not compiled in, rebuild with -tags with_opus_ms (requires libopus and pkg-config)")

// multistreamDecoder is the stub used when multistream support is not
// compiled in. Sessions that need a multistream decoder (more than two
// Opus channels, or explicit multistream parameters) fail decoder
// creation and their packets are dropped; mono and stereo Opus without
// multistream parameters is unaffected.
type multistreamDecoder struct{}

func newMultistreamDecoder(sampleRate, channels, streams, coupled int, mapping []byte) (*multistreamDecoder, error) {
	return nil, errNoMultistream
}

func (d *multistreamDecoder) Decode(data []byte, pcm []int16) (int, error) {
	return 0, errNoMultistream
}

func (d *multistreamDecoder) Close() {}
