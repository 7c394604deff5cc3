// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package codec

import (
	"encoding/binary"
	"fmt"
	"sync"

	opus "gopkg.in/hraban/opus.v2"

	"github.com/sourceflow/rtpingest/ingest/layout"
	"github.com/sourceflow/rtpingest/ingest/wire"
)

// opusFrameMaxMs is the largest legal Opus frame duration.
const opusFrameMaxMs = 120

// decoderKey is the tuple that uniquely identifies an Opus decoder
// configuration. A decoder handle is configured for exactly one such
// tuple; any change triggers destroy and recreate.
type decoderKey struct {
	sampleRate  uint32
	channels    int
	streams     int
	coupled     int
	mappingHash string
}

func keyFor(props wire.StreamProperties) decoderKey {
	return decoderKey{
		sampleRate:  props.SampleRate,
		channels:    props.Channels,
		streams:     props.OpusStreams,
		coupled:     props.OpusCoupledStreams,
		mappingHash: string(props.OpusChannelMapping),
	}
}

// opusDecoder is either a single-stream or multistream decoder.
type opusDecoder struct {
	key decoderKey

	single *opus.Decoder
	multi  *multistreamDecoder

	pcm []int16
}

func newOpusDecoder(props wire.StreamProperties) (*opusDecoder, error) {
	key := keyFor(props)
	maxSamples := int(float64(props.SampleRate) * opusFrameMaxMs / 1000.0)
	d := &opusDecoder{
		key: key,
		pcm: make([]int16, maxSamples*props.Channels),
	}

	if props.Channels <= 2 && len(props.OpusChannelMapping) == 0 && props.OpusStreams == 0 {
		dec, err := opus.NewDecoder(int(props.SampleRate), props.Channels)
		if err != nil {
			return nil, fmt.Errorf("opus: create decoder: %w", err)
		}
		d.single = dec
		return d, nil
	}

	streams, coupled, mapping := resolveMultistreamLayout(props)
	dec, err := newMultistreamDecoder(int(props.SampleRate), props.Channels, streams, coupled, mapping)
	if err != nil {
		return nil, fmt.Errorf("opus: create multistream decoder: %w", err)
	}
	d.multi = dec
	return d, nil
}

// close releases the decoder's native resources. The single-stream
// binding is garbage collected; only the multistream handle needs an
// explicit destroy.
func (d *opusDecoder) close() {
	if d.multi != nil {
		d.multi.Close()
		d.multi = nil
	}
}

// resolveMultistreamLayout derives (streams, coupled, mapping) from the
// stream properties. If the properties already carry a valid explicit
// mapping it is used as-is; otherwise a canonical layout is
// derived the way a surround-encoder probe for the requested mapping
// family would report it (create-probe-then-destroy, mirrored here as a
// pure lookup against the same canonical families libopus defines since
// we don't need an actual encoder instance to know the standard layout).
func resolveMultistreamLayout(props wire.StreamProperties) (streams, coupled int, mapping []byte) {
	if props.OpusStreams > 0 && len(props.OpusChannelMapping) == props.Channels {
		return props.OpusStreams, props.OpusCoupledStreams, props.OpusChannelMapping
	}
	return canonicalSurroundLayout(props.OpusMappingFamily, props.Channels)
}

// canonicalSurroundLayout returns the libopus "mapping family" canonical
// stream/coupled/channel-mapping layout for common surround configurations.
// This is the standard table libopus's encoder would have produced for a
// surround-encoder probe at the given mapping family; we consult it
// directly rather than spin up a throwaway encoder.
func canonicalSurroundLayout(mappingFamily, channels int) (streams, coupled int, mapping []byte) {
	switch {
	case mappingFamily == 1 && channels == 6: // 5.1
		return 4, 2, []byte{0, 4, 1, 2, 3, 5}
	case mappingFamily == 1 && channels == 8: // 7.1
		return 5, 3, []byte{0, 6, 1, 2, 3, 4, 5, 7}
	case channels == 2:
		return 1, 1, []byte{0, 1}
	default:
		// Fall back to independent mono streams, one per channel.
		mapping = make([]byte, channels)
		for i := range mapping {
			mapping[i] = byte(i)
		}
		return channels, 0, mapping
	}
}

func (d *opusDecoder) decode(payload []byte) ([]int16, error) {
	var n int
	var err error
	if d.single != nil {
		n, err = d.single.Decode(payload, d.pcm)
	} else {
		n, err = d.multi.Decode(payload, d.pcm)
	}
	if err != nil {
		return nil, err
	}
	channels := d.key.channels
	return d.pcm[:n*channels], nil
}

func int16ToBytesLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// OpusHandler decodes payload type 111 (Opus). It keeps a per-SSRC decoder
// cache, destroying and recreating a decoder whenever the effective
// (sample_rate, channels, streams, coupled, mapping) tuple changes, all
// under a single mutex.
type OpusHandler struct {
	mu       sync.Mutex
	decoders map[uint32]*opusDecoder
}

func NewOpusHandler() *OpusHandler {
	return &OpusHandler{decoders: make(map[uint32]*opusDecoder)}
}

func (h *OpusHandler) Supports(pt uint8) bool {
	return pt == 111
}

func (h *OpusHandler) Populate(pkt wire.RtpPacketData, props wire.StreamProperties) (wire.TaggedAudioPacket, error) {
	dec, err := h.decoderFor(pkt.SSRC, props)
	if err != nil {
		return wire.TaggedAudioPacket{}, err
	}

	samples, err := dec.decode(pkt.Payload)
	if err != nil {
		return wire.TaggedAudioPacket{}, fmt.Errorf("opus: decode: %w", err)
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
		BitDepth:          16,
		ChLayout1:         lo,
		ChLayout2:         hi,
		AudioData:         int16ToBytesLE(samples),
	}, nil
}

func (h *OpusHandler) decoderFor(ssrc uint32, props wire.StreamProperties) (*opusDecoder, error) {
	key := keyFor(props)

	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.decoders[ssrc]; ok {
		if existing.key == key {
			return existing, nil
		}
		// Tuple changed: destroy and recreate.
		existing.close()
		delete(h.decoders, ssrc)
	}

	dec, err := newOpusDecoder(props)
	if err != nil {
		return nil, err
	}
	h.decoders[ssrc] = dec
	return dec, nil
}

func (h *OpusHandler) OnSSRCCleared(ssrc uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if dec, ok := h.decoders[ssrc]; ok {
		dec.close()
		delete(h.decoders, ssrc)
	}
}

func (h *OpusHandler) OnAllCleared() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, dec := range h.decoders {
		dec.close()
	}
	h.decoders = make(map[uint32]*opusDecoder)
}

// DecoderCount reports the number of live decoders, used by tests to
// verify there is at most one decoder per SSRC and zero after teardown.
func (h *OpusHandler) DecoderCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.decoders)
}
