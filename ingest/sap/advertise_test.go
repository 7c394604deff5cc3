// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package sap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

func TestBuildSDPRoundTripsThroughResolveAnnouncement(t *testing.T) {
	spec := AdvertiseSpec{
		SessionID:   4242,
		AnnouncerIP: "10.0.0.1",
		StreamIP:    "239.5.5.5",
		Port:        6970,
		Properties: wire.StreamProperties{
			PayloadType: 111,
			Codec:       wire.CodecOpus,
			SampleRate:  48000,
			Channels:    6,
			Endianness:  wire.LittleEndian,
			BitDepth:    16,

			OpusMappingFamily:  1,
			OpusStreams:        4,
			OpusCoupledStreams: 2,
			OpusChannelMapping: []byte{0, 4, 1, 2, 3, 5},
		},
		TargetSink: "zone1",
		TargetHost: "mixer.local",
	}

	body := buildSDP(spec)
	sd, err := parseSDP(body)
	require.NoError(t, err)

	ann, err := resolveAnnouncement(sd, spec.AnnouncerIP)
	require.NoError(t, err)

	assert.Equal(t, spec.StreamIP, ann.StreamIP)
	assert.Equal(t, spec.Port, ann.Port)
	assert.Equal(t, uint32(spec.SessionID), ann.SSRC)
	assert.Equal(t, wire.CodecOpus, ann.Properties.Codec)
	assert.Equal(t, 6, ann.Properties.Channels)
	assert.Equal(t, 4, ann.Properties.OpusStreams)
	assert.Equal(t, 2, ann.Properties.OpusCoupledStreams)
	assert.Equal(t, []byte{0, 4, 1, 2, 3, 5}, ann.Properties.OpusChannelMapping)
	assert.Equal(t, "zone1", ann.TargetSink)
	assert.Equal(t, "mixer.local", ann.TargetHost)
}

func TestEncodeSAPHeaderThenParseRecoversBody(t *testing.T) {
	header := encodeSAPHeader(7, []byte{10, 0, 0, 1})
	packet := append(header, []byte("v=0\r\nc=IN IP4 239.1.1.1\r\n")...)

	body, err := parseSAPHeader(packet)
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\nc=IN IP4 239.1.1.1\r\n", string(body))
}
