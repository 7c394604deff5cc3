// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package probe

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

// gridChannels and gridBits enumerate the brute-force PCM candidate grid.
var gridChannels = []int{1, 2, 6, 8}
var gridBits = []int{8, 16, 24, 32}

// pcmCandidate is one point in the PCM grid search, carrying enough
// state to recompute sample rate and promote mono to stereo once the
// winner is known.
type pcmCandidate struct {
	channels       int
	bytesPerSample int
	endianness     wire.Endianness
	score          float64
	confidence     float64

	// SampleRate is filled in by the caller once elapsed time is known.
	SampleRate uint32
}

// readSample decodes one sample at byte offset off, bytesPerSample wide,
// in the given endianness, normalized to [-1, 1].
func readSample(buf []byte, off, bytesPerSample int, end wire.Endianness) float64 {
	switch bytesPerSample {
	case 1:
		// Unsigned 8-bit PCM, centered at 128.
		return (float64(buf[off]) - 128) / 128.0
	case 2:
		var v int16
		if end == wire.LittleEndian {
			v = int16(binary.LittleEndian.Uint16(buf[off:]))
		} else {
			v = int16(binary.BigEndian.Uint16(buf[off:]))
		}
		return float64(v) / 32768.0
	case 3:
		var b0, b1, b2 byte
		if end == wire.LittleEndian {
			b0, b1, b2 = buf[off], buf[off+1], buf[off+2]
		} else {
			b2, b1, b0 = buf[off], buf[off+1], buf[off+2]
		}
		raw := int32(b0) | int32(b1)<<8 | int32(b2)<<16
		if raw&0x800000 != 0 {
			raw |= ^int32(0xFFFFFF)
		}
		return float64(raw) / 8388608.0
	case 4:
		var v uint32
		if end == wire.LittleEndian {
			v = binary.LittleEndian.Uint32(buf[off:])
		} else {
			v = binary.BigEndian.Uint32(buf[off:])
		}
		return float64(int32(v)) / 2147483648.0
	default:
		return 0
	}
}

// frameScalars decodes buf into one scalar per frame (the mean across
// channels), for the given grid point.
func frameScalars(buf []byte, channels, bytesPerSample int, end wire.Endianness) []float64 {
	frameSize := channels * bytesPerSample
	if frameSize == 0 {
		return nil
	}
	n := len(buf) / frameSize
	if n == 0 {
		return nil
	}

	out := make([]float64, n)
	for f := 0; f < n; f++ {
		base := f * frameSize
		var sum float64
		for c := 0; c < channels; c++ {
			sum += readSample(buf, base+c*bytesPerSample, bytesPerSample, end)
		}
		out[f] = sum / float64(channels)
	}
	return out
}

// scoreFrames computes the coarse+fine discontinuity score (both averaged
// over the frame-to-frame deltas), variance penalty and bit-depth tiebreak
// penalty for one grid candidate.
func scoreFrames(frames []float64, bytesPerSample int) float64 {
	if len(frames) < 2 {
		return math.Inf(1)
	}

	maxAmp := 0.0
	for _, v := range frames {
		a := math.Abs(v)
		if a > maxAmp {
			maxAmp = a
		}
	}
	if maxAmp == 0 {
		maxAmp = 1e-9
	}

	var coarse, fineSum float64
	for i := 1; i < len(frames); i++ {
		delta := math.Abs(frames[i] - frames[i-1])
		fineSum += delta
		if delta > 0.3*maxAmp {
			coarse += delta
		}
	}
	coarse /= float64(len(frames) - 1)
	fine := (fineSum / float64(len(frames)-1)) * 0.1

	mean := 0.0
	for _, v := range frames {
		mean += v
	}
	mean /= float64(len(frames))
	var variance float64
	for _, v := range frames {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(frames))

	score := coarse + fine
	if variance < 0.001 {
		score += math.Inf(1) / 2
	}

	if bytesPerSample > 2 {
		score += 5e-4 * float64(bytesPerSample-2)
	}
	return score
}

// bestPCMCandidate brute-forces the {1,2,6,8}x{8,16,24,32}x{LE,BE} grid
// and returns the lowest-scoring candidate. The grid's endianness pick is
// provisional: detectEndianness re-derives it from byte volatility once
// channels and bit depth are settled.
func bestPCMCandidate(buf []byte) pcmCandidate {
	var best pcmCandidate
	bestScore := math.Inf(1)

	scoresByChannels := make(map[int][]float64, len(gridChannels))

	for _, channels := range gridChannels {
		for _, bits := range gridBits {
			bps := bits / 8
			for _, end := range []wire.Endianness{wire.LittleEndian, wire.BigEndian} {
				if bps == 1 && end == wire.BigEndian {
					continue
				}
				frames := frameScalars(buf, channels, bps, end)
				score := scoreFrames(frames, bps)
				scoresByChannels[channels] = append(scoresByChannels[channels], score)
				if score < bestScore {
					bestScore = score
					best = pcmCandidate{channels: channels, bytesPerSample: bps, endianness: end, score: score}
				}
			}
		}
	}

	best.confidence = confidenceFromScores(best.score, secondLowest(scoresByChannels[best.channels]))
	return best
}

// secondLowest returns the second-smallest value in scores, or +Inf if
// there is no second candidate.
func secondLowest(scores []float64) float64 {
	lowest, second := math.Inf(1), math.Inf(1)
	for _, s := range scores {
		switch {
		case s < lowest:
			lowest, second = s, lowest
		case s < second:
			second = s
		}
	}
	return second
}

// samplesForGrid decodes buf at a single grid point into an int16
// sequence scaled to a common 16-bit reference, used by the codec test's
// best-PCM-score baseline.
func samplesForGrid(buf []byte, channels, bytesPerSample int, end wire.Endianness) []int16 {
	frames := frameScalars(buf, channels, bytesPerSample, end)
	out := make([]int16, len(frames))
	for i, v := range frames {
		out[i] = int16(v * 32767)
	}
	return out
}

// promoteMonoToStereoIfDuplicated implements the mono-vs-duplicated-
// stereo tiebreak: if the winning candidate is mono but the equivalent
// stereo candidate's cross-channel difference is small relative to both
// max amplitude and sequential difference, promote to stereo.
func promoteMonoToStereoIfDuplicated(buf []byte, best pcmCandidate) pcmCandidate {
	if best.channels != 1 {
		return best
	}

	frameSize := 2 * best.bytesPerSample
	n := len(buf) / frameSize
	if n < 2 {
		return best
	}

	var crossDiffSum, seqDiffSum, maxAmp float64
	var prevLeft float64
	for f := 0; f < n; f++ {
		base := f * frameSize
		left := readSample(buf, base, best.bytesPerSample, best.endianness)
		right := readSample(buf, base+best.bytesPerSample, best.bytesPerSample, best.endianness)

		crossDiffSum += math.Abs(left - right)
		if a := math.Abs(left); a > maxAmp {
			maxAmp = a
		}
		if f > 0 {
			seqDiffSum += math.Abs(left - prevLeft)
		}
		prevLeft = left
	}
	if maxAmp == 0 {
		maxAmp = 1e-9
	}

	meanCross := crossDiffSum / float64(n)
	meanSeq := seqDiffSum / float64(n-1)

	if meanCross < 0.01*maxAmp && (meanSeq == 0 || meanCross < 0.2*meanSeq) {
		promoted := best
		promoted.channels = 2
		return promoted
	}
	return best
}

// estimateSampleRate infers the stream's sample rate from the observed
// byte rate and rounds to the nearest common broadcast rate.
func estimateSampleRate(totalBytes int, elapsed time.Duration, channels, bytesPerSample int) uint32 {
	if elapsed <= 0 || channels == 0 || bytesPerSample == 0 {
		return 48000
	}
	bytesPerSecond := float64(totalBytes) / elapsed.Seconds()
	raw := bytesPerSecond / float64(channels*bytesPerSample)
	return nearestCommonSampleRate(raw)
}

var commonSampleRates = []uint32{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}

func nearestCommonSampleRate(raw float64) uint32 {
	best := commonSampleRates[0]
	bestDist := math.Abs(raw - float64(best))
	for _, r := range commonSampleRates[1:] {
		d := math.Abs(raw - float64(r))
		if d < bestDist {
			best, bestDist = r, d
		}
	}
	return best
}
