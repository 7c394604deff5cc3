// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package codec

import (
	"github.com/zaf/g711"

	"github.com/sourceflow/rtpingest/ingest/layout"
	"github.com/sourceflow/rtpingest/ingest/wire"
)

// G711Handler expands µ-law (payload type 0) and A-law (payload type 8)
// bytes to 16-bit LE PCM using zaf/g711's 256-entry lookup tables and
// per-byte frame decode.
type G711Handler struct{}

func NewG711Handler() *G711Handler { return &G711Handler{} }

func (h *G711Handler) Supports(pt uint8) bool {
	return pt == 0 || pt == 8
}

func (h *G711Handler) Populate(pkt wire.RtpPacketData, props wire.StreamProperties) (wire.TaggedAudioPacket, error) {
	pcm := make([]byte, len(pkt.Payload)*2)
	switch props.Codec {
	case wire.CodecPCMA:
		for i, b := range pkt.Payload {
			frame := g711.DecodeAlawFrame(b)
			pcm[2*i] = byte(frame)
			pcm[2*i+1] = byte(frame >> 8)
		}
	default: // PCMU
		for i, b := range pkt.Payload {
			frame := g711.DecodeUlawFrame(b)
			pcm[2*i] = byte(frame)
			pcm[2*i+1] = byte(frame >> 8)
		}
	}

	mask := layout.MaskForChannels(1)
	lo, hi := layout.Split(mask)

	seq := pkt.SequenceNumber
	return wire.TaggedAudioPacket{
		SSRCs:             []uint32{pkt.SSRC},
		ReceivedTime:      pkt.ReceivedTime,
		RTPTimestamp:      pkt.RTPTimestamp,
		RTPSequenceNumber: &seq,
		SampleRate:        props.SampleRate,
		Channels:          1,
		BitDepth:          16,
		ChLayout1:         lo,
		ChLayout2:         hi,
		AudioData:         pcm,
	}, nil
}

func (h *G711Handler) OnSSRCCleared(ssrc uint32) {}
func (h *G711Handler) OnAllCleared()             {}
