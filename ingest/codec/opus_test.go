// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

func TestResolveMultistreamLayoutExplicitMapping(t *testing.T) {
	props := wire.StreamProperties{
		Channels:           6,
		OpusStreams:        4,
		OpusCoupledStreams: 2,
		OpusChannelMapping: []byte{0, 4, 1, 2, 3, 5},
	}

	streams, coupled, mapping := resolveMultistreamLayout(props)
	assert.Equal(t, 4, streams)
	assert.Equal(t, 2, coupled)
	assert.Equal(t, []byte{0, 4, 1, 2, 3, 5}, mapping)
}

func TestResolveMultistreamLayoutCanonicalFamily1FiveOne(t *testing.T) {
	props := wire.StreamProperties{Channels: 6, OpusMappingFamily: 1}

	streams, coupled, mapping := resolveMultistreamLayout(props)
	assert.Equal(t, 4, streams)
	assert.Equal(t, 2, coupled)
	assert.Equal(t, []byte{0, 4, 1, 2, 3, 5}, mapping)
}

func TestResolveMultistreamLayoutCanonicalFamily1SevenOne(t *testing.T) {
	props := wire.StreamProperties{Channels: 8, OpusMappingFamily: 1}

	streams, coupled, _ := resolveMultistreamLayout(props)
	assert.Equal(t, 5, streams)
	assert.Equal(t, 3, coupled)
}

func TestDecoderKeyChangesOnTupleChange(t *testing.T) {
	base := wire.StreamProperties{SampleRate: 48000, Channels: 2}
	k1 := keyFor(base)

	changed := base
	changed.Channels = 6
	k2 := keyFor(changed)

	assert.NotEqual(t, k1, k2)
}

func TestOpusHandlerSupports(t *testing.T) {
	h := NewOpusHandler()
	assert.True(t, h.Supports(111))
	assert.False(t, h.Supports(0))
	assert.Equal(t, 0, h.DecoderCount())
}
