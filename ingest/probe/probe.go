// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

// Package probe implements the statistical audio format detector used
// when an SSRC has no SDP announcement and its payload type is not in
// the static default table: it accumulates raw bytes for a window, then
// scores codec and PCM-grid candidates to infer channels, bit depth,
// endianness, sample rate and codec.
package probe

import (
	"time"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

// MinWindow is the minimum accumulation time before a probe is eligible
// to finalize.
const MinWindow = 500 * time.Millisecond

// MinBytes is the minimum accumulated byte count before a probe is
// eligible to finalize.
const MinBytes = 5000

// MaxBufferBytes caps accumulation, sized for roughly 2 seconds at
// 48kHz stereo 32-bit.
const MaxBufferBytes = 48000 * 2 * 4 * 2

// Probe accumulates raw RTP payload bytes for one SSRC and, once enough
// data has arrived, finalizes a StreamProperties guess. Not safe for
// concurrent use; callers serialize access per SSRC.
type Probe struct {
	buf       []byte
	firstSeen time.Time

	done       bool
	result     wire.StreamProperties
	confidence float64
}

// New constructs an empty Probe.
func New() *Probe {
	return &Probe{}
}

// Feed appends payload bytes to the accumulation buffer. It is a no-op
// once the probe has finalized.
func (p *Probe) Feed(payload []byte, now time.Time) {
	if p.done {
		return
	}
	if p.firstSeen.IsZero() {
		p.firstSeen = now
	}
	if len(p.buf) >= MaxBufferBytes {
		return
	}
	room := MaxBufferBytes - len(p.buf)
	if len(payload) > room {
		payload = payload[:room]
	}
	p.buf = append(p.buf, payload...)
}

// Ready reports whether enough data has accumulated to finalize.
func (p *Probe) Ready(now time.Time) bool {
	if p.done {
		return true
	}
	if len(p.buf) < MinBytes {
		return false
	}
	return now.Sub(p.firstSeen) >= MinWindow
}

// Done reports whether Finalize has already run.
func (p *Probe) Done() bool {
	return p.done
}

// Result returns the finalized StreamProperties. Only valid after Done
// returns true.
func (p *Probe) Result() wire.StreamProperties {
	return p.result
}

// Confidence returns the [0,1] confidence score computed for the PCM
// fallback path. Coded-format detections (G.711/Opus) always report 1.
func (p *Probe) Confidence() float64 {
	return p.confidence
}

// Finalize runs the detection algorithm over the accumulated buffer and
// caches the result. Calling Finalize more than once is a no-op and
// returns the first result (idempotent).
func (p *Probe) Finalize(elapsed time.Duration) wire.StreamProperties {
	if p.done {
		return p.result
	}

	codecGuess, codecOK := detectCodec(p.buf)
	if codecOK {
		p.result = codecGuess
		p.result.Source = wire.SourceProbe
		p.confidence = 1
		p.done = true
		return p.result
	}

	pcm := bestPCMCandidate(p.buf)
	pcm = promoteMonoToStereoIfDuplicated(p.buf, pcm)
	pcm.endianness = detectEndianness(p.buf, pcm.bytesPerSample)
	pcm.SampleRate = estimateSampleRate(len(p.buf), elapsed, pcm.channels, pcm.bytesPerSample)

	p.result = wire.StreamProperties{
		Codec:      wire.CodecPCM,
		SampleRate: pcm.SampleRate,
		Channels:   pcm.channels,
		BitDepth:   pcm.bytesPerSample * 8,
		Endianness: pcm.endianness,
		Source:     wire.SourceProbe,
	}
	p.confidence = pcm.confidence
	p.done = true
	return p.result
}
