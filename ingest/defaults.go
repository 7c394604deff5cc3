// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package ingest

import "github.com/sourceflow/rtpingest/ingest/wire"

// defaultEntry is one row of the static payload-type default table,
// consulted only on the configured default port when no SAP
// announcement covers a stream.
type defaultEntry struct {
	codec      wire.Codec
	sampleRate uint32
	channels   int
	bitDepth   int
	endianness wire.Endianness
}

var payloadDefaults = map[uint8]defaultEntry{
	0:   {wire.CodecPCMU, 8000, 1, 8, wire.BigEndian},
	8:   {wire.CodecPCMA, 8000, 1, 8, wire.BigEndian},
	10:  {wire.CodecPCM, 44100, 1, 16, wire.BigEndian},
	11:  {wire.CodecPCM, 44100, 2, 16, wire.BigEndian},
	111: {wire.CodecOpus, 48000, 2, 16, wire.LittleEndian},
	127: {wire.CodecPCM, 48000, 2, 16, wire.BigEndian},
}

// defaultPropertiesFor looks up the static table entry for pt, returning
// ok=false if pt has no default-table entry.
func defaultPropertiesFor(pt uint8) (wire.StreamProperties, bool) {
	e, ok := payloadDefaults[pt]
	if !ok {
		return wire.StreamProperties{}, false
	}
	return wire.StreamProperties{
		Codec:       e.codec,
		SampleRate:  e.sampleRate,
		Channels:    e.channels,
		BitDepth:    e.bitDepth,
		Endianness:  e.endianness,
		PayloadType: pt,
		Source:      wire.SourceDefaultTable,
	}, true
}

// isProbeEligiblePayloadType reports whether pt falls in the dynamic
// range accepted for format probing on the default port (96-127, minus
// the well-known numbers already in the default table).
func isProbeEligiblePayloadType(pt uint8) bool {
	if pt < 96 || pt > 127 {
		return false
	}
	_, known := payloadDefaults[pt]
	return !known
}
