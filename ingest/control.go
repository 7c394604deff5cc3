// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package ingest

import (
	"fmt"
	"time"

	"github.com/sourceflow/rtpingest/ingest/sap"
	"github.com/sourceflow/rtpingest/ingest/wire"
)

// consumerKey identifies one registered downstream consumer.
type consumerKey struct {
	endpointTag string
	instanceID  string
}

// consumer is a bounded fanout target for TaggedAudioPackets matching
// its endpoint tag. Publish never blocks on a full queue: a full queue
// drops the packet and counts it under resource exhaustion.
type consumer struct {
	protocol string
	queue    chan wire.TaggedAudioPacket
}

// ConfigureSource registers a downstream consumer queue under
// (endpointTag, instanceID). Every packet emitted with a matching
// source tag is duplicated onto queue; queue must be supplied by the
// caller and is never closed by the receiver.
func (r *Receiver) ConfigureSource(instanceID, endpointTag, protocol string, queue chan wire.TaggedAudioPacket) {
	r.consumersMu.Lock()
	defer r.consumersMu.Unlock()
	if r.consumers == nil {
		r.consumers = make(map[consumerKey]*consumer)
	}
	r.consumers[consumerKey{endpointTag: endpointTag, instanceID: instanceID}] = &consumer{protocol: protocol, queue: queue}
}

// RemoveSource unregisters every consumer registered under instanceID.
func (r *Receiver) RemoveSource(instanceID string) {
	r.consumersMu.Lock()
	defer r.consumersMu.Unlock()
	for k := range r.consumers {
		if k.instanceID == instanceID {
			delete(r.consumers, k)
		}
	}
}

// publish duplicates pkt to every consumer whose endpoint tag matches
// pkt.SourceTag. A full consumer queue drops the packet rather than
// blocking the emission path.
func (r *Receiver) publish(pkt wire.TaggedAudioPacket) {
	r.consumersMu.RLock()
	defer r.consumersMu.RUnlock()

	for k, c := range r.consumers {
		if k.endpointTag != pkt.SourceTag {
			continue
		}
		select {
		case c.queue <- pkt:
		default:
			r.drops.inc(dropResourceExhaustion)
			r.log.Warn().Str("tag", pkt.SourceTag).Msg("consumer queue full, dropping packet")
		}
	}
}

// GetSAPAnnouncements returns a snapshot of the SAP listener's
// currently indexed announcements.
func (r *Receiver) GetSAPAnnouncements() map[string]sap.Announcement {
	if r.sap == nil {
		return nil
	}
	return r.sap.Announcements()
}

// AdvertiseSAP begins periodically announcing a locally-originated stream
// over SAP. The returned stop function halts that one advertisement; all
// running advertisements are halted automatically on Stop.
func (r *Receiver) AdvertiseSAP(spec sap.AdvertiseSpec, interval time.Duration) (stop func(), err error) {
	if r.sap == nil {
		return nil, fmt.Errorf("ingest: receiver not started")
	}
	return r.sap.Advertise(spec, interval)
}

// AddRawReceiver opens a Scream-protocol raw receiver on port, fanning
// its decoded packets into the same publish path as RTP.
func (r *Receiver) AddRawReceiver(port int) error {
	r.rawMu.Lock()
	defer r.rawMu.Unlock()
	if r.rawReceivers == nil {
		r.rawReceivers = make(map[int]*rawReceiver)
	}
	if _, exists := r.rawReceivers[port]; exists {
		return fmt.Errorf("ingest: raw receiver already active on port %d", port)
	}

	rr, err := newRawReceiver(port, r.log, r.publish, &r.drops)
	if err != nil {
		return &StartupError{Stage: fmt.Sprintf("raw receiver port %d", port), Err: err}
	}
	r.rawReceivers[port] = rr
	rr.start()
	return nil
}

// RemoveRawReceiver closes the raw receiver bound to port, if any.
func (r *Receiver) RemoveRawReceiver(port int) {
	r.rawMu.Lock()
	defer r.rawMu.Unlock()
	if rr, ok := r.rawReceivers[port]; ok {
		rr.stop()
		delete(r.rawReceivers, port)
	}
}

// Stats returns a point-in-time telemetry snapshot.
func (r *Receiver) Stats() Stats {
	r.ssrcMu.Lock()
	count := len(r.ssrcStates)
	total, max := 0, 0
	for _, st := range r.ssrcStates {
		st.mu.Lock()
		n := st.buffer.Len()
		st.mu.Unlock()
		total += n
		if n > max {
			max = n
		}
	}
	r.ssrcMu.Unlock()

	return Stats{
		BufferCount:          count,
		TotalBufferedPackets: total,
		MaxBufferedPackets:   max,
		Drops:                r.drops.Snapshot(),
	}
}
