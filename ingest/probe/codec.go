// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package probe

import (
	"math"

	"github.com/zaf/g711"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

// discontinuityScore sums |s_i - s_{i-1}| / 32767 over consecutive
// samples, but only counts deltas that exceed 6500 (a coarse jump,
// rather than ordinary sample-to-sample variation), and normalizes by
// sample count.
func discontinuityScore(samples []int16) float64 {
	if len(samples) < 2 {
		return math.Inf(1)
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		delta := int(samples[i]) - int(samples[i-1])
		if delta < 0 {
			delta = -delta
		}
		if delta > 6500 {
			sum += float64(delta) / 32767.0
		}
	}
	return sum / float64(len(samples))
}

// detectCodec tests µ-law, A-law and Opus decodes against the best PCM
// interpretation and accepts a coded format when it is unambiguously
// smoother.
func detectCodec(buf []byte) (wire.StreamProperties, bool) {
	if len(buf) == 0 {
		return wire.StreamProperties{}, false
	}

	bestPCMScore := bestPCMScoreOnly(buf)

	type candidate struct {
		codec wire.Codec
		score float64
	}
	candidates := []candidate{
		{wire.CodecPCMU, discontinuityScore(decodeULaw(buf))},
		{wire.CodecPCMA, discontinuityScore(decodeALaw(buf))},
		{wire.CodecOpus, opusScore(buf)},
	}

	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if best == nil || c.score < best.score {
			best = c
		}
	}
	if best == nil {
		return wire.StreamProperties{}, false
	}

	accept := best.score < 0.01 || (bestPCMScore > 0 && best.score/bestPCMScore < 0.8)
	if !accept {
		return wire.StreamProperties{}, false
	}

	switch best.codec {
	case wire.CodecPCMU:
		return wire.StreamProperties{Codec: wire.CodecPCMU, SampleRate: 8000, Channels: 1, BitDepth: 8, Endianness: wire.BigEndian}, true
	case wire.CodecPCMA:
		return wire.StreamProperties{Codec: wire.CodecPCMA, SampleRate: 8000, Channels: 1, BitDepth: 8, Endianness: wire.BigEndian}, true
	case wire.CodecOpus:
		return wire.StreamProperties{Codec: wire.CodecOpus, SampleRate: 48000, Channels: 2, BitDepth: 16, Endianness: wire.LittleEndian}, true
	default:
		return wire.StreamProperties{}, false
	}
}

func decodeULaw(buf []byte) []int16 {
	out := make([]int16, len(buf))
	for i, b := range buf {
		out[i] = g711.DecodeUlawFrame(b)
	}
	return out
}

func decodeALaw(buf []byte) []int16 {
	out := make([]int16, len(buf))
	for i, b := range buf {
		out[i] = g711.DecodeAlawFrame(b)
	}
	return out
}

// opusScore attempts to decode the first 1500 bytes of buf as Opus at
// 48kHz stereo; a decode failure scores +Inf.
func opusScore(buf []byte) float64 {
	chunk := buf
	if len(chunk) > 1500 {
		chunk = chunk[:1500]
	}

	dec, err := opus.NewDecoder(48000, 2)
	if err != nil {
		return math.Inf(1)
	}
	pcm := make([]int16, 48000/1000*120*2)
	n, err := dec.Decode(chunk, pcm)
	if err != nil || n == 0 {
		return math.Inf(1)
	}
	return discontinuityScore(pcm[:n*2])
}

// bestPCMScoreOnly runs the PCM discontinuity metric over the
// {1,2}x{8,16,24,32}-bit grid referenced by the codec test and returns
// the minimum score, without running the full grid search used for the
// PCM fallback path.
func bestPCMScoreOnly(buf []byte) float64 {
	best := math.Inf(1)
	for _, channels := range []int{1, 2} {
		for _, bits := range []int{8, 16, 24, 32} {
			bps := bits / 8
			for _, end := range []wire.Endianness{wire.LittleEndian, wire.BigEndian} {
				if bps == 1 && end == wire.BigEndian {
					continue
				}
				samples := samplesForGrid(buf, channels, bps, end)
				if len(samples) < 2 {
					continue
				}
				if s := discontinuityScore(samples); s < best {
					best = s
				}
			}
		}
	}
	return best
}
