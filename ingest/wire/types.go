// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

// Package wire holds the wire-level data types shared by every stage of
// the ingestion pipeline (jitter buffer, codec handlers, SAP listener,
// format probe and the receiver core), so that those packages can depend
// on the shared shapes without importing the root ingest package.
package wire

import "time"

// Codec identifies the payload interpretation of an audio stream.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecPCM
	CodecPCMU
	CodecPCMA
	CodecOpus
)

func (c Codec) String() string {
	switch c {
	case CodecPCM:
		return "PCM"
	case CodecPCMU:
		return "PCMU"
	case CodecPCMA:
		return "PCMA"
	case CodecOpus:
		return "OPUS"
	default:
		return "UNKNOWN"
	}
}

// Endianness of PCM samples wider than one byte.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

// RtpPacketData is the immutable record produced once an RTP packet has
// been parsed off the wire. It flows: ingress -> jitter buffer -> codec
// handler, and is never mutated after construction.
type RtpPacketData struct {
	SequenceNumber uint16
	RTPTimestamp   uint32
	SSRC           uint32
	CSRCs          []uint32
	PayloadType    uint8
	ReceivedTime   time.Time
	Payload        []byte
}

// StreamProperties describes the wire format of one SSRC's audio stream.
// Once populated from SDP it is stable until the SAP announcement is
// superseded or the SSRC is torn down: the format probe never overwrites
// an SDP-derived StreamProperties.
type StreamProperties struct {
	Codec       Codec
	SampleRate  uint32
	Channels    int
	BitDepth    int
	Endianness  Endianness
	Port        int
	PayloadType uint8

	// Opus multistream parameters; zero values mean "not multistream".
	OpusStreams        int
	OpusCoupledStreams int
	OpusMappingFamily  int
	OpusChannelMapping []byte

	// Source indicates how these properties were resolved, used only for
	// logging/telemetry.
	Source PropertySource
}

// PropertySource records where a StreamProperties value came from.
type PropertySource int

const (
	SourceUnknown PropertySource = iota
	SourceSDP
	SourceDefaultTable
	SourceProbe
)

func (s PropertySource) String() string {
	switch s {
	case SourceSDP:
		return "sdp"
	case SourceDefaultTable:
		return "default-table"
	case SourceProbe:
		return "probe"
	default:
		return "unknown"
	}
}

// Valid reports whether the properties are sufficiently populated to
// decode a packet.
func (p StreamProperties) Valid() bool {
	return p.Codec != CodecUnknown && p.SampleRate > 0 && p.Channels > 0
}

// TaggedAudioPacket is the uniform output record emitted to downstream
// mixing stages.
type TaggedAudioPacket struct {
	SourceTag         string
	SSRCs             []uint32
	ReceivedTime      time.Time
	RTPTimestamp      uint32
	RTPSequenceNumber *uint16
	SampleRate        uint32
	Channels          int
	BitDepth          int
	ChLayout1         uint8
	ChLayout2         uint8
	AudioData         []byte
	IsSentinel        bool
}

// SentinelBucketSize is the RTP-timestamp bucket width used to mark
// resync-boundary sentinel packets; downstream consumers use sentinel
// packets as a resync cue.
const SentinelBucketSize uint32 = 100_000
