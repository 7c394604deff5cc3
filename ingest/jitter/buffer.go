// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

// Package jitter implements a per-SSRC bounded reordering buffer for RTP
// packets: a sequence-keyed holding area that absorbs out-of-order
// arrival and tolerates loss by releasing packets either in order or
// after a bounded wait.
package jitter

import (
	"time"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

const (
	// DefaultMaxDelay is the default bounded dwell time before a missing
	// packet is skipped.
	DefaultMaxDelay = 50 * time.Millisecond
	// DefaultMaxSize is the default maximum number of buffered packets.
	DefaultMaxSize = 128
	// largeGapThreshold is the sequence-number gap, in packets, past which
	// an empty buffer assumes stream discontinuity (e.g. sender restart)
	// rather than simple reordering, and jumps forward immediately.
	largeGapThreshold = 192
)

type entry struct {
	pkt     wire.RtpPacketData
	arrived time.Time
}

// Buffer is a bounded, per-SSRC reordering buffer keyed by RTP sequence
// number. It is not safe for concurrent use; callers serialize access per
// SSRC (see the receiver's per-SSRC state lock).
type Buffer struct {
	MaxDelay time.Duration
	MaxSize  int

	entries map[uint16]entry

	nextExpected uint16
	initialized  bool
}

// New constructs a Buffer with the given parameters. Zero values fall back
// to the package defaults (50ms / 128 packets).
func New(maxDelay time.Duration, maxSize int) *Buffer {
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Buffer{
		MaxDelay: maxDelay,
		MaxSize:  maxSize,
		entries:  make(map[uint16]entry, maxSize),
	}
}

// greater implements RFC 3550 style wraparound comparison: a is considered
// "after" b if the signed 16-bit difference is positive.
func greater(a, b uint16) bool {
	return a != b && int16(a-b) > 0
}

// forwardDistance returns how far ahead of b, a is (mod 2^16), always
// non-negative.
func forwardDistance(a, b uint16) uint16 {
	return a - b
}

// Reset clears all buffered state, as happens on stream discontinuity or
// SSRC teardown.
func (b *Buffer) Reset() {
	b.entries = make(map[uint16]entry, b.MaxSize)
	b.nextExpected = 0
	b.initialized = false
}

// Len reports the number of currently buffered packets.
func (b *Buffer) Len() int {
	return len(b.entries)
}

// Add inserts a packet into the buffer, advancing or resetting the expected
// sequence number as needed. The onLargeGap and onDropDuplicate callbacks
// are used for rate-limited logging by the caller; either may be nil.
func (b *Buffer) Add(pkt wire.RtpPacketData, now time.Time, onLargeGap func(from, to uint16), onDropDuplicate func(seq uint16)) {
	seq := pkt.SequenceNumber

	if !b.initialized {
		b.nextExpected = seq
		b.initialized = true
	}

	if greater(seq, b.nextExpected) {
		gap := forwardDistance(seq, b.nextExpected)
		if int(gap) >= largeGapThreshold && len(b.entries) == 0 {
			if onLargeGap != nil {
				onLargeGap(b.nextExpected, seq)
			}
			b.nextExpected = seq
		}
	} else if seq != b.nextExpected {
		// Behind next-expected: late arrival, discard.
		if onDropDuplicate != nil {
			onDropDuplicate(seq)
		}
		return
	}

	if _, dup := b.entries[seq]; dup {
		if onDropDuplicate != nil {
			onDropDuplicate(seq)
		}
		return
	}

	if len(b.entries) >= b.MaxSize {
		farthestSeq, farthestDist := b.farthestFromExpected()
		newDist := forwardDistance(seq, b.nextExpected)
		if newDist > farthestDist {
			// New packet is farther out than anything buffered: drop it
			// instead of evicting.
			return
		}
		delete(b.entries, farthestSeq)
	}

	b.entries[seq] = entry{pkt: pkt, arrived: now}
}

func (b *Buffer) farthestFromExpected() (seq uint16, dist uint16) {
	var found bool
	for s := range b.entries {
		d := forwardDistance(s, b.nextExpected)
		if !found || d > dist {
			seq, dist, found = s, d, true
		}
	}
	return seq, dist
}

// Ready drains and returns all packets currently eligible for release,
// either because they arrived in order or because the oldest gap has
// exceeded its bounded dwell time. onSkip is invoked with the number of
// sequence numbers skipped over whenever the buffer advances past a gap
// due to bounded dwell expiry; may be nil.
func (b *Buffer) Ready(now time.Time, onSkip func(skipped int)) []wire.RtpPacketData {
	var out []wire.RtpPacketData

	for {
		if e, ok := b.entries[b.nextExpected]; ok {
			out = append(out, e.pkt)
			delete(b.entries, b.nextExpected)
			b.nextExpected++
			continue
		}

		// Remove any stragglers behind next-expected (shouldn't normally
		// happen since Add() rejects them, but guards against a prior
		// large-gap jump leaving stale entries behind).
		for s := range b.entries {
			if !greater(s, b.nextExpected) && s != b.nextExpected {
				delete(b.entries, s)
			}
		}

		candidateSeq, ok := b.nearestCandidate()
		if !ok {
			return out
		}

		waited := now.Sub(b.entries[candidateSeq].arrived)
		if waited >= b.MaxDelay {
			skipped := int(forwardDistance(candidateSeq, b.nextExpected))
			if onSkip != nil && skipped > 0 {
				onSkip(skipped)
			}
			b.nextExpected = candidateSeq
			continue
		}

		return out
	}
}

func (b *Buffer) nearestCandidate() (uint16, bool) {
	var (
		best     uint16
		bestDist uint16
		found    bool
	)
	for s := range b.entries {
		d := forwardDistance(s, b.nextExpected)
		if !found || d < bestDist {
			best, bestDist, found = s, d, true
		}
	}
	return best, found
}

// NextExpected reports the sequence number the buffer expects to release
// next; exposed for tests and telemetry.
func (b *Buffer) NextExpected() uint16 {
	return b.nextExpected
}
