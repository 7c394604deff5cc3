// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

// Package ratelimit provides a tiny timestamp-gated helper for rate
// limiting repetitive warning logs, the same pattern as an inline
// "lastWarnTime" field guarding an RTP/RTCP log line.
package ratelimit

import (
	"sync"
	"time"
)

// Gate allows an action at most once per Interval. Zero value is usable
// and allows immediately on first call.
type Gate struct {
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// Allow reports whether enough time has passed since the last Allow call
// that returned true, and if so records now as the new baseline.
func (g *Gate) Allow(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.last.IsZero() || now.Sub(g.last) >= g.Interval {
		g.last = now
		return true
	}
	return false
}
