// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package probe

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

// sineBE16Stereo builds a BE 16-bit stereo sawtooth (identical left and
// right) that ramps in steps of 50 and drops back to 0 every 200 frames.
func sineBE16Stereo(frames int) []byte {
	buf := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		v := int16((i % 200) * 50)
		binary.BigEndian.PutUint16(buf[i*4:], uint16(v))
		binary.BigEndian.PutUint16(buf[i*4+2:], uint16(v))
	}
	return buf
}

func TestProbeReadyRequiresBothWindowAndBytes(t *testing.T) {
	p := New()
	now := time.Unix(0, 0)
	p.Feed(make([]byte, 100), now)
	assert.False(t, p.Ready(now))

	p.Feed(make([]byte, MinBytes), now.Add(100*time.Millisecond))
	assert.False(t, p.Ready(now.Add(100*time.Millisecond)), "window not satisfied yet")

	assert.True(t, p.Ready(now.Add(600*time.Millisecond)))
}

func TestProbeFinalizeIsIdempotent(t *testing.T) {
	p := New()
	now := time.Unix(0, 0)
	p.Feed(sineBE16Stereo(3000), now)

	first := p.Finalize(time.Second)
	second := p.Finalize(2 * time.Second)

	assert.Equal(t, first, second)
	assert.True(t, p.Done())
}

func TestFinalizeDetectsBigEndianStereoSixteenBit(t *testing.T) {
	p := New()
	// 48000 stereo 16-bit frames over one second: 192000 bytes/s.
	p.Feed(sineBE16Stereo(48000), time.Unix(0, 0))

	result := p.Finalize(time.Second)
	assert.Equal(t, wire.CodecPCM, result.Codec)
	assert.Equal(t, 2, result.Channels)
	assert.Equal(t, 16, result.BitDepth)
	assert.Equal(t, wire.BigEndian, result.Endianness)
	assert.Equal(t, uint32(48000), result.SampleRate)
}

func TestDetectEndiannessBigEndianMostVolatileLastByte(t *testing.T) {
	buf := make([]byte, 0, 4000)
	for i := 0; i < 1000; i++ {
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(i*137))
		buf = append(buf, b...)
	}
	assert.Equal(t, wire.BigEndian, detectEndianness(buf, 2))
}

func TestDetectEndiannessLittleEndianMostVolatileFirstByte(t *testing.T) {
	buf := make([]byte, 0, 4000)
	for i := 0; i < 1000; i++ {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(i*137))
		buf = append(buf, b...)
	}
	assert.Equal(t, wire.LittleEndian, detectEndianness(buf, 2))
}

func TestNearestCommonSampleRateRounds(t *testing.T) {
	assert.Equal(t, uint32(48000), nearestCommonSampleRate(47800))
	assert.Equal(t, uint32(44100), nearestCommonSampleRate(44200))
	assert.Equal(t, uint32(8000), nearestCommonSampleRate(500))
}

func TestPromoteMonoToStereoWhenChannelsDuplicated(t *testing.T) {
	frames := 2000
	buf := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		v := int16((i % 300) * 80)
		binary.LittleEndian.PutUint16(buf[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(buf[i*4+2:], uint16(v))
	}

	mono := pcmCandidate{channels: 1, bytesPerSample: 2, endianness: wire.LittleEndian}
	promoted := promoteMonoToStereoIfDuplicated(buf, mono)
	assert.Equal(t, 2, promoted.channels)
}

func TestConfidenceFromScoresCloseToOneOnBigGap(t *testing.T) {
	c := confidenceFromScores(0.001, 1.0)
	assert.Greater(t, c, 0.9)
}

func TestConfidenceFromScoresZeroOnTie(t *testing.T) {
	c := confidenceFromScores(0.5, 0.5)
	assert.Equal(t, 0.0, c)
}

func TestProbeFeedRespectsBufferCap(t *testing.T) {
	p := New()
	p.Feed(make([]byte, MaxBufferBytes+1000), time.Unix(0, 0))
	require.LessOrEqual(t, len(p.buf), MaxBufferBytes)
}
