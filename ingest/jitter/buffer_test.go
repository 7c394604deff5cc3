// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

func pkt(seq uint16) wire.RtpPacketData {
	return wire.RtpPacketData{SequenceNumber: seq}
}

func seqs(pkts []wire.RtpPacketData) []uint16 {
	out := make([]uint16, len(pkts))
	for i, p := range pkts {
		out[i] = p.SequenceNumber
	}
	return out
}

func TestInOrderRelease(t *testing.T) {
	b := New(50*time.Millisecond, 128)
	now := time.Now()
	for seq := uint16(100); seq < 110; seq++ {
		b.Add(pkt(seq), now, nil, nil)
	}

	out := b.Ready(now, nil)
	require.Len(t, out, 10)
	for i, p := range out {
		assert.Equal(t, uint16(100+i), p.SequenceNumber)
	}
}

func TestReorderWindow(t *testing.T) {
	b := New(50*time.Millisecond, 128)
	now := time.Now()

	for _, seq := range []uint16{100, 102, 101, 103} {
		b.Add(pkt(seq), now, nil, nil)
	}

	out := b.Ready(now, nil)
	assert.Equal(t, []uint16{100, 101, 102, 103}, seqs(out))
}

func TestLossWithTimeout(t *testing.T) {
	b := New(50*time.Millisecond, 128)
	t0 := time.Now()

	b.Add(pkt(100), t0, nil, nil)
	b.Add(pkt(102), t0, nil, nil)

	out := b.Ready(t0, nil)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(100), out[0].SequenceNumber)
	assert.Equal(t, uint16(101), b.NextExpected())

	var skipped int
	out = b.Ready(t0.Add(60*time.Millisecond), func(n int) { skipped = n })
	require.Len(t, out, 1)
	assert.Equal(t, uint16(102), out[0].SequenceNumber)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, uint16(103), b.NextExpected())
}

func TestDuplicateDropped(t *testing.T) {
	b := New(50*time.Millisecond, 128)
	now := time.Now()

	var drops int
	b.Add(pkt(100), now, nil, func(uint16) { drops++ })
	b.Add(pkt(100), now, nil, func(uint16) { drops++ })

	out := b.Ready(now, nil)
	require.Len(t, out, 1)
	assert.Equal(t, 1, drops)
}

func TestLateArrivalDiscarded(t *testing.T) {
	b := New(50*time.Millisecond, 128)
	now := time.Now()

	b.Add(pkt(100), now, nil, nil)
	out := b.Ready(now, nil)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(101), b.NextExpected())

	var drops int
	b.Add(pkt(99), now, nil, func(uint16) { drops++ })
	assert.Equal(t, 1, drops)
	assert.Equal(t, 0, b.Len())
}

func TestLargeGapRecovery(t *testing.T) {
	b := New(50*time.Millisecond, 128)
	now := time.Now()

	b.Add(pkt(100), now, nil, nil)
	out := b.Ready(now, nil)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(101), b.NextExpected())

	var gapFrom, gapTo uint16
	b.Add(pkt(1000), now, func(from, to uint16) { gapFrom, gapTo = from, to }, nil)
	assert.Equal(t, uint16(101), gapFrom)
	assert.Equal(t, uint16(1000), gapTo)

	out = b.Ready(now, nil)
	require.Len(t, out, 1)
	assert.Equal(t, uint16(1000), out[0].SequenceNumber)
}

func TestMaxSizeEviction(t *testing.T) {
	b := New(time.Hour, 4)
	now := time.Now()

	b.Add(pkt(100), now, nil, nil)
	out := b.Ready(now, nil)
	require.Len(t, out, 1)

	// 101 is never added, so everything past it accumulates unreleased.
	b.Add(pkt(102), now, nil, nil)
	b.Add(pkt(103), now, nil, nil)
	b.Add(pkt(104), now, nil, nil)
	b.Add(pkt(105), now, nil, nil)
	assert.Equal(t, 4, b.Len())

	// A closer packet evicts the farthest buffered entry (105).
	b.Add(pkt(101), now, nil, nil)
	assert.Equal(t, 4, b.Len())
	_, has105 := b.entries[105]
	assert.False(t, has105)

	// A farther packet than anything buffered is dropped, not evicted.
	b.Add(pkt(200), now, nil, nil)
	assert.Equal(t, 4, b.Len())
	_, has200 := b.entries[200]
	assert.False(t, has200)
}

func TestSequenceWraparound(t *testing.T) {
	b := New(50*time.Millisecond, 128)
	now := time.Now()

	b.Add(pkt(65534), now, nil, nil)
	b.Add(pkt(65535), now, nil, nil)
	b.Add(pkt(0), now, nil, nil)
	b.Add(pkt(1), now, nil, nil)

	out := b.Ready(now, nil)
	assert.Equal(t, []uint16{65534, 65535, 0, 1}, seqs(out))
}
