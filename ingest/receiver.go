// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

// Package ingest implements the real-time RTP audio stream ingestion
// pipeline: SAP-driven and default-table stream discovery, a per-SSRC
// bounded reordering buffer, pluggable payload codec decoding and a
// statistical format probe for streams with neither SDP nor a
// recognized payload type.
package ingest

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sourceflow/rtpingest/ingest/codec"
	"github.com/sourceflow/rtpingest/ingest/sap"
	"github.com/sourceflow/rtpingest/ingest/wire"
	"github.com/sourceflow/rtpingest/internal/ratelimit"
	"github.com/sourceflow/rtpingest/internal/udpsock"
)

// eventLoopTimeout is the read-deadline interval each socket's reader
// goroutine uses to periodically drain bounded-dwell-expired packets
// from its reordering buffers, independent of new datagrams arriving.
const eventLoopTimeout = 5 * time.Millisecond

// telemetryInterval is how often periodic buffer telemetry is logged.
const telemetryInterval = 30 * time.Second

// Receiver is the RTP ingestion core: it owns the
// default-port socket plus one dynamically opened socket per SAP
// announcement, a per-SSRC reordering buffer and decoder set, and
// fans decoded audio out to registered consumers.
type Receiver struct {
	cfg Config
	log zerolog.Logger

	sap      *sap.Listener
	handlers []codec.Handler

	running atomic.Bool
	wg      sync.WaitGroup

	socketsMu sync.Mutex
	sockets   map[int]*net.UDPConn

	sourceMu     sync.Mutex
	sourceToSSRC map[string]uint32

	ssrcMu     sync.Mutex
	ssrcStates map[uint32]*ssrcState

	consumersMu sync.RWMutex
	consumers   map[consumerKey]*consumer

	rawMu        sync.Mutex
	rawReceivers map[int]*rawReceiver

	gapWarn  ratelimit.Gate
	skipWarn ratelimit.Gate

	drops DropCounter

	stopCh chan struct{}
}

// NewReceiver constructs a Receiver with the given options applied over
// package defaults. It does not open any sockets; call Start for that.
func NewReceiver(opts ...Option) *Receiver {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Receiver{
		cfg:          cfg,
		log:          cfg.Logger.With().Str("caller", "ingest").Logger(),
		sockets:      make(map[int]*net.UDPConn),
		sourceToSSRC: make(map[string]uint32),
		ssrcStates:   make(map[uint32]*ssrcState),
		consumers:    make(map[consumerKey]*consumer),
		rawReceivers: make(map[int]*rawReceiver),
		handlers: []codec.Handler{
			codec.NewPCMHandler(),
			codec.NewG711Handler(),
			codec.NewOpusHandler(),
		},
		stopCh: make(chan struct{}),
	}
	r.gapWarn.Interval = 2 * time.Second
	r.skipWarn.Interval = 200 * time.Millisecond
	return r
}

// Start binds the default RTP socket and the SAP multicast listener,
// then begins receiving. A failure here is class-5 fatal: no partial
// state is left running.
func (r *Receiver) Start() error {
	// Read loops gate on the running flag, so it must be up before the
	// first socket opens.
	r.running.Store(true)

	r.sap = sap.New(r.log)
	r.sap.OnNewSession = func(streamIP string, port int) {
		if err := r.openDynamicSocket(port); err != nil {
			r.log.Warn().Err(err).Str("ip", streamIP).Int("port", port).Msg("failed to open dynamic socket for SAP session")
		}
	}
	if err := r.sap.Start(); err != nil {
		r.running.Store(false)
		return &StartupError{Stage: "sap listener", Err: err}
	}

	if err := r.openSocket(r.cfg.DefaultPort); err != nil {
		r.sap.Stop()
		r.running.Store(false)
		return &StartupError{Stage: "default rtp socket", Err: err}
	}

	r.wg.Add(1)
	go r.telemetryLoop()
	return nil
}

// Stop halts all receive loops, closes every socket and raw receiver,
// and waits for goroutines to exit.
func (r *Receiver) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	close(r.stopCh)

	if r.sap != nil {
		r.sap.Stop()
	}

	r.socketsMu.Lock()
	for _, conn := range r.sockets {
		conn.Close()
	}
	r.sockets = make(map[int]*net.UDPConn)
	r.socketsMu.Unlock()

	r.rawMu.Lock()
	for port, rr := range r.rawReceivers {
		rr.stop()
		delete(r.rawReceivers, port)
	}
	r.rawMu.Unlock()

	r.wg.Wait()

	r.ssrcMu.Lock()
	r.ssrcStates = make(map[uint32]*ssrcState)
	r.ssrcMu.Unlock()
	for _, h := range r.handlers {
		h.OnAllCleared()
	}
}

func (r *Receiver) openSocket(port int) error {
	conn, err := udpsock.Listen("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen udp :%d: %w", port, err)
	}
	if err := conn.SetReadBuffer(r.cfg.ChunkSize * 4000); err != nil {
		r.log.Debug().Err(err).Msg("SO_RCVBUF not applied")
	}

	r.socketsMu.Lock()
	r.sockets[port] = conn
	r.socketsMu.Unlock()

	r.wg.Add(1)
	go r.readLoop(conn, port)
	return nil
}

func (r *Receiver) openDynamicSocket(port int) error {
	r.socketsMu.Lock()
	_, exists := r.sockets[port]
	r.socketsMu.Unlock()
	if exists {
		return nil
	}
	return r.openSocket(port)
}

func (r *Receiver) readLoop(conn *net.UDPConn, port int) {
	defer r.wg.Done()

	buf := make([]byte, 1500)
	for r.running.Load() {
		conn.SetReadDeadline(time.Now().Add(eventLoopTimeout))
		n, addr, err := conn.ReadFromUDP(buf)
		now := time.Now()

		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				r.drainExpired(now)
				continue
			}
			return
		}

		r.handlePacket(buf[:n], addr, port, now)
		r.drainExpired(now)
	}
}

// handlePacket implements the per-packet path: parse, filter, SSRC
// tracking, enqueue and drain. port is the local port the datagram was
// received on; the payload default table is only consulted for traffic
// on the configured default port.
func (r *Receiver) handlePacket(buf []byte, addr *net.UDPAddr, port int, now time.Time) {
	if len(buf) < 12 {
		r.drops.inc(dropMalformed)
		return
	}

	pkt, err := wire.ParseRTPPacket(buf, now)
	if err != nil {
		r.drops.inc(dropMalformed)
		r.log.Debug().Err(err).Msg("malformed rtp packet")
		return
	}

	isDefaultPort := port == r.cfg.DefaultPort
	canonicalPT := r.canonicalPayloadType(pkt)
	if !r.supportsPayloadType(canonicalPT, pkt.SSRC, isDefaultPort) {
		r.drops.inc(dropPolicy)
		r.log.Debug().Uint8("pt", pkt.PayloadType).Msg("unsupported payload type, dropping")
		return
	}

	endpointKey := addr.String()
	st := r.trackSourceEndpoint(endpointKey, pkt.SSRC, now)

	st.mu.Lock()
	st.lastAddr = addr
	st.onDefaultPort = isDefaultPort
	st.buffer.Add(pkt, now, func(from, to uint16) {
		if r.gapWarn.Allow(now) {
			r.log.Warn().Uint16("from", from).Uint16("to", to).Msg("large sequence gap, resynchronizing")
		}
	}, nil)
	st.mu.Unlock()

	r.drainReady(st, endpointKey, now)
}

func (r *Receiver) drainReady(st *ssrcState, endpointKey string, now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ready := st.buffer.Ready(now, func(skipped int) {
		if r.skipWarn.Allow(now) {
			r.log.Warn().Int("skipped", skipped).Msg("bounded dwell expired, skipping gap")
		}
	})

	for _, pkt := range ready {
		props, ok := st.resolveProperties(r, pkt.PayloadType, pkt.Payload, now)
		if !ok {
			continue // still probing: packet retained inside the probe's own buffer
		}

		_, isNew := st.sentinelBucket(pkt.RTPTimestamp)

		handler := r.handlerFor(props.Codec)
		if handler == nil {
			r.drops.inc(dropPolicy)
			continue
		}

		tagged, err := handler.Populate(pkt, props)
		if err != nil {
			r.drops.inc(dropMalformed)
			r.log.Debug().Err(err).Msg("decode failed")
			continue
		}

		tagged.SourceTag = r.sourceTagFor(endpointKey, pkt.SSRC)
		tagged.SSRCs = []uint32{pkt.SSRC}
		tagged.IsSentinel = isNew

		r.publish(tagged)
	}
}

func (r *Receiver) handlerFor(c wire.Codec) codec.Handler {
	canonical := codec.CanonicalPayloadType(0, c, 1)
	for _, h := range r.handlers {
		if h.Supports(canonical) {
			return h
		}
	}
	return nil
}

// canonicalPayloadType resolves pt, falling back to the SSRC's SAP
// announcement if the raw payload type is a dynamic/override number.
func (r *Receiver) canonicalPayloadType(pkt wire.RtpPacketData) uint8 {
	if _, ok := payloadDefaults[pkt.PayloadType]; ok {
		return pkt.PayloadType
	}
	if props, ok := r.sap.PropertiesForSSRC(pkt.SSRC); ok {
		return codec.CanonicalPayloadType(pkt.PayloadType, props.Codec, props.Channels)
	}
	return pkt.PayloadType
}

func (r *Receiver) supportsPayloadType(pt uint8, ssrc uint32, isDefaultPort bool) bool {
	if _, ok := r.sap.PropertiesForSSRC(ssrc); ok {
		return true
	}
	if isDefaultPort {
		if _, ok := payloadDefaults[pt]; ok {
			return true
		}
		return isProbeEligiblePayloadType(pt)
	}
	// Dynamic sockets exist only because a SAP announcement asked for
	// them; accept whatever payload type that session carries.
	return true
}

func (r *Receiver) trackSourceEndpoint(endpointKey string, ssrc uint32, now time.Time) *ssrcState {
	r.sourceMu.Lock()
	prevSSRC, hadPrev := r.sourceToSSRC[endpointKey]
	changed := hadPrev && prevSSRC != ssrc
	r.sourceToSSRC[endpointKey] = ssrc
	r.sourceMu.Unlock()

	r.ssrcMu.Lock()
	defer r.ssrcMu.Unlock()

	if changed {
		delete(r.ssrcStates, prevSSRC)
		clearDecoders(r.handlers, prevSSRC)
		r.sap.ClearSSRC(prevSSRC)
	}

	st, ok := r.ssrcStates[ssrc]
	if !ok {
		st = newSSRCState(ssrc, r.cfg.MaxDelay, r.cfg.MaxSize, endpointKey)
		st.firstSeenAt = now
		r.ssrcStates[ssrc] = st
	}
	return st
}

// sourceTagFor resolves the source_tag for an emitted packet: an explicit
// SAP routing sink takes priority, then the SAP session's own GUID, and
// finally the bare "ip:port" of the sending endpoint when no announcement
// covers the SSRC at all. Lookup is by SSRC, not by the sender's socket
// address: the announcement index is keyed by the advertised media port,
// which is never the sender's ephemeral source port.
func (r *Receiver) sourceTagFor(endpointKey string, ssrc uint32) string {
	if ann, ok := r.sap.AnnouncementForSSRC(ssrc); ok {
		if ann.TargetSink != "" {
			return ann.TargetSink
		}
		if ann.SessionGUID != "" {
			return ann.SessionGUID
		}
	}
	return endpointKey
}

func (r *Receiver) drainExpired(now time.Time) {
	r.ssrcMu.Lock()
	states := make([]*ssrcState, 0, len(r.ssrcStates))
	for _, st := range r.ssrcStates {
		states = append(states, st)
	}
	r.ssrcMu.Unlock()

	for _, st := range states {
		endpointKey := st.sourceTag
		r.drainReady(st, endpointKey, now)
	}
}

func (r *Receiver) telemetryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			stats := r.Stats()
			r.log.Info().
				Int("buffer_count", stats.BufferCount).
				Int("total_buffered_packets", stats.TotalBufferedPackets).
				Int("max_buffered_packets", stats.MaxBufferedPackets).
				Msg("ingest telemetry")
		}
	}
}
