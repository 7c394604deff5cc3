// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package sap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

// sessionGUIDNamespace seeds the deterministic per-session GUID derivation
// so the same (stream IP, port, SSRC) tuple always yields the same GUID
// across re-announcements of the same session, without persisting any
// generator state.
var sessionGUIDNamespace = uuid.MustParse("a3f57b1e-9c2d-4e36-9c0b-8a6d2f5b9e11")

// Announcement is a resolved SAP/SDP session: the fields the RTP receiver
// needs to open a dynamic socket, plus the StreamProperties every SSRC in
// the session shares.
type Announcement struct {
	StreamIP    string
	AnnouncerIP string
	Port        int
	Properties  wire.StreamProperties
	TargetSink  string
	TargetHost  string
	SSRC        uint32

	// SessionGUID identifies this session independent of any
	// x-screamrouter-target sink hint, used as the emitted packet's
	// source_tag when no explicit sink is advertised.
	SessionGUID string
}

// codecPreference is the order codecs are preferred in when an m= line
// advertises more than one payload type.
var codecPreference = []string{"OPUS", "L24", "L16", "S16LE", "PCM"}

// resolveAnnouncement builds an Announcement from a parsed SDP document
// and the address the SAP packet arrived from.
func resolveAnnouncement(sd sessionDescription, announcerIP string) (Announcement, error) {
	if sd.connection.ip == nil {
		return Announcement{}, fmt.Errorf("sap: no connection information in SDP")
	}
	if sd.mediaPort == 0 {
		return Announcement{}, fmt.Errorf("sap: no audio media description in SDP")
	}

	pt, ok := selectPayloadType(sd)
	if !ok {
		return Announcement{}, fmt.Errorf("sap: no usable rtpmap entries")
	}

	props := propertiesFromSDP(sd, pt)

	ann := Announcement{
		StreamIP:    sd.connection.ip.String(),
		AnnouncerIP: announcerIP,
		Port:        sd.mediaPort,
		Properties:  props,
		SSRC:        uint32(sd.origin.sessionID),
	}
	ann.SessionGUID = uuid.NewSHA1(sessionGUIDNamespace, []byte(fmt.Sprintf("%s:%d:%d", ann.StreamIP, ann.Port, ann.SSRC))).String()
	if sd.target != nil {
		ann.TargetSink = sd.target.sink
		ann.TargetHost = sd.target.host
	}
	return ann, nil
}

// selectPayloadType picks the payload type to use for this session,
// preferring Opus, then L24/L16/S16LE/PCM, else the first advertised
// rtpmap entry.
func selectPayloadType(sd sessionDescription) (int, bool) {
	for _, pref := range codecPreference {
		for _, f := range sd.formats {
			pt, err := strconv.Atoi(f)
			if err != nil {
				continue
			}
			if m, ok := sd.rtpmaps[pt]; ok && m.encoding == pref {
				return pt, true
			}
		}
	}

	for _, f := range sd.formats {
		pt, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		if _, ok := sd.rtpmaps[pt]; ok {
			return pt, true
		}
	}

	return 0, false
}

func propertiesFromSDP(sd sessionDescription, pt int) wire.StreamProperties {
	m := sd.rtpmaps[pt]
	fmtp := sd.fmtps[pt]

	props := wire.StreamProperties{
		PayloadType: uint8(pt),
		SampleRate:  m.rate,
		Channels:    m.channels,
		Port:        sd.mediaPort,
		Source:      wire.SourceSDP,
	}

	props.Codec, props.Endianness, props.BitDepth = codecFromEncoding(m.encoding)

	if fmtp != nil {
		applyFmtp(&props, fmtp)
	}

	if props.Channels == 0 {
		props.Channels = 1
	}
	if props.BitDepth == 0 {
		props.BitDepth = 16
	}
	return props
}

// codecFromEncoding maps an rtpmap encoding name to codec/endianness/bit
// depth: L16/L24 are big-endian, S16LE is little-endian, Opus output PCM
// is little-endian.
func codecFromEncoding(encoding string) (wire.Codec, wire.Endianness, int) {
	switch encoding {
	case "OPUS":
		return wire.CodecOpus, wire.LittleEndian, 16
	case "L16":
		return wire.CodecPCM, wire.BigEndian, 16
	case "L24":
		return wire.CodecPCM, wire.BigEndian, 24
	case "S16LE":
		return wire.CodecPCM, wire.LittleEndian, 16
	case "PCMU":
		return wire.CodecPCMU, wire.BigEndian, 8
	case "PCMA":
		return wire.CodecPCMA, wire.BigEndian, 8
	default:
		return wire.CodecPCM, wire.BigEndian, 16
	}
}

func applyFmtp(props *wire.StreamProperties, fmtp map[string]string) {
	if v, ok := fmtp["channels"]; ok {
		if ch, err := strconv.Atoi(v); err == nil {
			props.Channels = ch
		}
	}
	if v, ok := fmtp["stereo"]; ok && v == "1" && props.Channels <= 1 {
		props.Channels = 2
	}
	if v, ok := fmtp["mapping_family"]; ok {
		if mf, err := strconv.Atoi(v); err == nil {
			props.OpusMappingFamily = mf
		}
	}
	if v, ok := fmtp["streams"]; ok {
		if s, err := strconv.Atoi(v); err == nil {
			props.OpusStreams = s
		}
	}
	if v, ok := fmtp["coupled_streams"]; ok {
		if c, err := strconv.Atoi(v); err == nil {
			props.OpusCoupledStreams = c
		}
	}
	if v, ok := fmtp["channel_mapping"]; ok {
		mapping := make([]byte, 0, props.Channels)
		for _, tok := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(tok))
			if err != nil {
				mapping = nil
				break
			}
			mapping = append(mapping, byte(n))
		}
		props.OpusChannelMapping = mapping
	}
}
