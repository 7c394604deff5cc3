// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package codec

import (
	"fmt"

	"github.com/sourceflow/rtpingest/ingest/layout"
	"github.com/sourceflow/rtpingest/ingest/wire"
)

// PCMHandler decodes raw L16/L24/L32 linear PCM payloads (payload types
// 10, 11 and the probe/default fallback 127). It byte-swaps in place when
// the stream's wire endianness differs from host (always little-endian)
// order, and otherwise just copies the payload through.
type PCMHandler struct{}

func NewPCMHandler() *PCMHandler { return &PCMHandler{} }

func (h *PCMHandler) Supports(pt uint8) bool {
	switch pt {
	case 10, 11, 127:
		return true
	default:
		return false
	}
}

func (h *PCMHandler) Populate(pkt wire.RtpPacketData, props wire.StreamProperties) (wire.TaggedAudioPacket, error) {
	bytesPerSample := props.BitDepth / 8
	if bytesPerSample < 1 {
		return wire.TaggedAudioPacket{}, fmt.Errorf("pcm: invalid bit depth %d", props.BitDepth)
	}

	data := make([]byte, len(pkt.Payload))
	copy(data, pkt.Payload)

	if props.Endianness == wire.BigEndian && bytesPerSample > 1 {
		swapSamples(data, bytesPerSample)
	}

	mask := layout.MaskForChannels(props.Channels)
	lo, hi := layout.Split(mask)

	seq := pkt.SequenceNumber
	return wire.TaggedAudioPacket{
		SSRCs:             []uint32{pkt.SSRC},
		ReceivedTime:      pkt.ReceivedTime,
		RTPTimestamp:      pkt.RTPTimestamp,
		RTPSequenceNumber: &seq,
		SampleRate:        props.SampleRate,
		Channels:          props.Channels,
		BitDepth:          props.BitDepth,
		ChLayout1:         lo,
		ChLayout2:         hi,
		AudioData:         data,
	}, nil
}

func (h *PCMHandler) OnSSRCCleared(ssrc uint32) {}
func (h *PCMHandler) OnAllCleared()             {}

// swapSamples reverses byte order within each bytesPerSample-wide sample,
// in place, for widths 2, 3 and 4 (16/24/32-bit).
func swapSamples(data []byte, bytesPerSample int) {
	for i := 0; i+bytesPerSample <= len(data); i += bytesPerSample {
		sample := data[i : i+bytesPerSample]
		for l, r := 0, len(sample)-1; l < r; l, r = l+1, r-1 {
			sample[l], sample[r] = sample[r], sample[l]
		}
	}
}
