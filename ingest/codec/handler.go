// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

// Package codec implements the pluggable payload codec handlers: one
// handler per codec family, each owning its decoder lifecycle per SSRC
// and producing a TaggedAudioPacket from a parsed RTP packet and its
// resolved StreamProperties.
package codec

import (
	"github.com/sourceflow/rtpingest/ingest/wire"
)

// Handler is implemented by every codec family. Dispatch is by canonical
// payload type (Supports), with exactly one handler matching per packet on
// the hot path.
type Handler interface {
	// Supports reports whether this handler decodes the given canonical
	// payload type.
	Supports(payloadType uint8) bool

	// Populate decodes pkt's payload per props and returns a fully formed
	// TaggedAudioPacket (source tag left for the caller to fill in).
	Populate(pkt wire.RtpPacketData, props wire.StreamProperties) (wire.TaggedAudioPacket, error)

	// OnSSRCCleared releases any per-SSRC decoder state (e.g. an Opus
	// decoder) when that SSRC is torn down.
	OnSSRCCleared(ssrc uint32)

	// OnAllCleared releases all per-SSRC decoder state, e.g. on receiver
	// shutdown.
	OnAllCleared()
}

// CanonicalPayloadType resolves an SDP-overridden dynamic payload type
// back to its well-known equivalent given the codec the SDP's rtpmap
// claims it to be. pt is returned unchanged only when the codec has no
// well-known equivalent.
func CanonicalPayloadType(pt uint8, c wire.Codec, channels int) uint8 {
	switch c {
	case wire.CodecPCMU:
		return 0
	case wire.CodecPCMA:
		return 8
	case wire.CodecPCM:
		if channels == 1 {
			return 10
		}
		return 11
	case wire.CodecOpus:
		return 111
	default:
		return pt
	}
}
