// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package ingest

import (
	"net"
	"sync"
	"time"

	"github.com/sourceflow/rtpingest/ingest/codec"
	"github.com/sourceflow/rtpingest/ingest/jitter"
	"github.com/sourceflow/rtpingest/ingest/probe"
	"github.com/sourceflow/rtpingest/ingest/wire"
)

// ssrcState bundles everything the receiver tracks per SSRC: its
// reordering buffer, resolved or probed properties, last sender address
// and sentinel-bucket bookkeeping. mu serializes access: the state is
// touched both by the socket read loop that feeds it and by every other
// read loop's timeout-driven drain pass.
type ssrcState struct {
	ssrc uint32

	mu sync.Mutex

	buffer *jitter.Buffer
	probe  *probe.Probe

	props      wire.StreamProperties
	propsKnown bool

	lastAddr    *net.UDPAddr
	sourceTag   string
	lastBucket  uint32
	bucketKnown bool

	// onDefaultPort records whether the most recent packet for this SSRC
	// arrived on the receiver's configured default port, which gates
	// whether the payload default table may be consulted.
	onDefaultPort bool

	firstSeenAt time.Time
}

func newSSRCState(ssrc uint32, maxDelay time.Duration, maxSize int, sourceTag string) *ssrcState {
	return &ssrcState{
		ssrc:      ssrc,
		buffer:    jitter.New(maxDelay, maxSize),
		sourceTag: sourceTag,
	}
}

// resolveProperties implements the SDP -> defaults -> probe-cache ->
// run-probe resolution order. It returns ok=false while a probe is
// still accumulating, in which case the caller must retain the packet
// rather than emit it.
func (s *ssrcState) resolveProperties(r *Receiver, pt uint8, payload []byte, now time.Time) (wire.StreamProperties, bool) {
	if s.propsKnown {
		return s.props, true
	}

	if props, ok := r.sap.PropertiesForSSRC(s.ssrc); ok {
		s.props, s.propsKnown = props, true
		return s.props, true
	}

	if s.onDefaultPort {
		if props, ok := defaultPropertiesFor(pt); ok {
			s.props, s.propsKnown = props, true
			return s.props, true
		}
	}

	if s.probe == nil {
		s.probe = probe.New()
	}
	s.probe.Feed(payload, now)

	if !s.probe.Ready(now) {
		return wire.StreamProperties{}, false
	}

	elapsed := now.Sub(s.firstSeenAt)
	s.props = s.probe.Finalize(elapsed)
	s.propsKnown = true
	s.probe = nil
	return s.props, true
}

// sentinelBucket returns the 100,000-timestamp bucket index for ts and
// whether this call transitions into a new bucket.
func (s *ssrcState) sentinelBucket(ts uint32) (bucket uint32, isNew bool) {
	bucket = ts / wire.SentinelBucketSize
	isNew = !s.bucketKnown || bucket != s.lastBucket
	s.lastBucket = bucket
	s.bucketKnown = true
	return bucket, isNew
}

// clearDecoders tears down any per-SSRC decoder state held by codec
// handlers for this SSRC, e.g. on SSRC change or stream teardown.
func clearDecoders(handlers []codec.Handler, ssrc uint32) {
	for _, h := range handlers {
		h.OnSSRCCleared(ssrc)
	}
}
