// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

func TestPCMHandlerLittleEndianPassthrough(t *testing.T) {
	h := NewPCMHandler()
	require.True(t, h.Supports(11))

	payload := []byte{0x01, 0x02, 0x03, 0x04}
	props := wire.StreamProperties{
		Codec: wire.CodecPCM, SampleRate: 48000, Channels: 2, BitDepth: 16,
		Endianness: wire.LittleEndian,
	}

	out, err := h.Populate(wire.RtpPacketData{Payload: payload, SSRC: 0xAAAA}, props)
	require.NoError(t, err)
	assert.Equal(t, payload, out.AudioData)
	assert.Equal(t, 2, out.Channels)
	assert.Equal(t, 16, out.BitDepth)

	mask := uint16(out.ChLayout1) | uint16(out.ChLayout2)<<8
	assert.Equal(t, uint16(0x0003), mask)
}

func TestPCMHandlerBigEndianByteSwap(t *testing.T) {
	h := NewPCMHandler()
	payload := []byte{0x00, 0x01, 0x00, 0x02} // two BE int16 samples: 1, 2
	props := wire.StreamProperties{
		Codec: wire.CodecPCM, SampleRate: 44100, Channels: 1, BitDepth: 16,
		Endianness: wire.BigEndian,
	}

	out, err := h.Populate(wire.RtpPacketData{Payload: payload}, props)
	require.NoError(t, err)
	// Host order is little-endian, so after swap bytes read as LE 1, LE 2.
	assert.Equal(t, []byte{0x01, 0x00, 0x02, 0x00}, out.AudioData)
}

func TestG711ULawDecodesToSixteenBit(t *testing.T) {
	h := NewG711Handler()
	require.True(t, h.Supports(0))

	// 0xFF is digital silence in u-law.
	payload := []byte{0xFF, 0xFF}
	props := wire.StreamProperties{Codec: wire.CodecPCMU, SampleRate: 8000, Channels: 1, BitDepth: 8}

	out, err := h.Populate(wire.RtpPacketData{Payload: payload}, props)
	require.NoError(t, err)
	assert.Equal(t, 16, out.BitDepth)
	assert.Equal(t, 1, out.Channels)
	assert.Len(t, out.AudioData, 4)
}

func TestCanonicalPayloadType(t *testing.T) {
	assert.Equal(t, uint8(0), CanonicalPayloadType(96, wire.CodecPCMU, 1))
	assert.Equal(t, uint8(111), CanonicalPayloadType(96, wire.CodecOpus, 2))
	assert.Equal(t, uint8(11), CanonicalPayloadType(96, wire.CodecPCM, 2))
	assert.Equal(t, uint8(10), CanonicalPayloadType(96, wire.CodecPCM, 1))
}
