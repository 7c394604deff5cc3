// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

// Package sap implements the SAP (Session Announcement Protocol, RFC 2974)
// listener: it joins the well-known SAP multicast groups, parses
// announcement bodies as SDP and publishes resolved StreamProperties
// indexed by SSRC and by endpoint.
package sap

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"github.com/sourceflow/rtpingest/ingest/wire"
	"github.com/sourceflow/rtpingest/internal/udpsock"
)

// Port is the well-known SAP UDP port.
const Port = 9875

// Multicast groups SAP announcements are sent to.
var Groups = []string{"224.2.127.254", "224.0.0.56"}

// LocalSSRCRegistry is a process-wide registry of SSRCs that originate
// from local senders, consulted before indexing an announcement to
// suppress echo loops.
type LocalSSRCRegistry struct {
	mu    sync.RWMutex
	ssrcs map[uint32]struct{}
}

// NewLocalSSRCRegistry constructs an empty registry.
func NewLocalSSRCRegistry() *LocalSSRCRegistry {
	return &LocalSSRCRegistry{ssrcs: make(map[uint32]struct{})}
}

func (r *LocalSSRCRegistry) Add(ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ssrcs[ssrc] = struct{}{}
}

func (r *LocalSSRCRegistry) Remove(ssrc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ssrcs, ssrc)
}

func (r *LocalSSRCRegistry) Contains(ssrc uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ssrcs[ssrc]
	return ok
}

// Listener listens on the SAP multicast groups and maintains the
// ssrc->StreamProperties and endpoint->StreamProperties indexes.
type Listener struct {
	// AllowedIPs, when non-empty, restricts accepted SAP packets to these
	// source IPs.
	AllowedIPs []string

	// LocalSSRCs suppresses announcements for SSRCs known to originate
	// locally, to avoid echo loops. Optional.
	LocalSSRCs *LocalSSRCRegistry

	// OnNewSession is invoked whenever a new (stream_ip, port) tuple is
	// observed, so the RTP receiver can open a dynamic unicast socket.
	OnNewSession func(streamIP string, port int)

	log zerolog.Logger

	ssrcMu     sync.RWMutex
	byssrc     map[uint32]wire.StreamProperties
	annsBySSRC map[uint32]Announcement

	endpointMu sync.RWMutex
	byendpoint map[string]wire.StreamProperties
	anns       map[string]Announcement

	seenMu sync.Mutex
	seen   map[string]struct{}

	advMu   sync.Mutex
	adverts map[*advertisement]struct{}

	conns []*net.UDPConn
}

// New constructs a Listener. Call Start to bind sockets and begin
// receiving.
func New(log zerolog.Logger) *Listener {
	return &Listener{
		log:        log.With().Str("caller", "sap").Logger(),
		byssrc:     make(map[uint32]wire.StreamProperties),
		annsBySSRC: make(map[uint32]Announcement),
		byendpoint: make(map[string]wire.StreamProperties),
		anns:       make(map[string]Announcement),
		seen:       make(map[string]struct{}),
	}
}

// Start joins both SAP multicast groups on Port with multicast loopback
// enabled, and begins the receive loop in a background goroutine. It
// returns once sockets are bound; bind failures are fatal and surfaced to
// the caller.
func (l *Listener) Start() error {
	for _, group := range Groups {
		conn, err := l.joinGroup(group)
		if err != nil {
			l.closeAll()
			return fmt.Errorf("sap: join %s: %w", group, err)
		}
		l.conns = append(l.conns, conn)
		go l.receiveLoop(conn)
	}
	return nil
}

func (l *Listener) joinGroup(group string) (*net.UDPConn, error) {
	conn, err := udpsock.Listen("udp4", fmt.Sprintf(":%d", Port))
	if err != nil {
		return nil, err
	}

	// SO_RCVBUF sized generously for burst announcement traffic.
	_ = conn.SetReadBuffer(256 * 1024)

	pconn := ipv4.NewPacketConn(conn)

	iface, err := defaultMulticastInterface()
	if err == nil {
		if err := pconn.JoinGroup(iface, &net.UDPAddr{IP: net.ParseIP(group)}); err != nil {
			conn.Close()
			return nil, err
		}
	}
	_ = pconn.SetMulticastLoopback(true)

	return conn, nil
}

func defaultMulticastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagMulticast != 0 && iface.Flags&net.FlagUp != 0 {
			return iface, nil
		}
	}
	return nil, fmt.Errorf("sap: no multicast-capable interface found")
}

func (l *Listener) closeAll() {
	for _, c := range l.conns {
		c.Close()
	}
	l.conns = nil
}

// Stop closes all sockets, unblocking the receive loops, and halts any
// running Advertise loops.
func (l *Listener) Stop() {
	l.stopAdvertising()
	l.closeAll()
}

func (l *Listener) receiveLoop(conn *net.UDPConn) {
	buf := make([]byte, 65536)
	for {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		l.handlePacket(buf[:n], addr)
	}
}

func (l *Listener) handlePacket(data []byte, from *net.UDPAddr) {
	if len(l.AllowedIPs) > 0 && !containsIP(l.AllowedIPs, from.IP.String()) {
		l.log.Debug().Str("from", from.IP.String()).Msg("SAP packet dropped: source IP not in allow-list")
		return
	}

	body, err := parseSAPHeader(data)
	if err != nil {
		l.log.Debug().Err(err).Msg("malformed SAP header")
		return
	}

	sd, err := parseSDP(body)
	if err != nil {
		l.log.Debug().Err(err).Msg("malformed SDP body")
		return
	}

	ann, err := resolveAnnouncement(sd, from.IP.String())
	if err != nil {
		l.log.Debug().Err(err).Msg("unusable SAP announcement")
		return
	}

	if l.LocalSSRCs != nil && l.LocalSSRCs.Contains(ann.SSRC) {
		l.log.Debug().Uint32("ssrc", ann.SSRC).Msg("suppressing local-loop SAP announcement")
		return
	}

	l.index(ann)
}

func containsIP(list []string, ip string) bool {
	for _, v := range list {
		if v == ip {
			return true
		}
	}
	return false
}

func (l *Listener) index(ann Announcement) {
	l.ssrcMu.Lock()
	l.byssrc[ann.SSRC] = ann.Properties
	l.annsBySSRC[ann.SSRC] = ann
	l.ssrcMu.Unlock()

	key := fmt.Sprintf("%s:%d", ann.StreamIP, ann.Port)
	tagged := fmt.Sprintf("%s#sap-%d", key, ann.Port)

	l.endpointMu.Lock()
	l.byendpoint[key] = ann.Properties
	l.byendpoint[tagged] = ann.Properties
	l.anns[key] = ann
	l.endpointMu.Unlock()

	l.seenMu.Lock()
	_, exists := l.seen[key]
	l.seen[key] = struct{}{}
	l.seenMu.Unlock()

	if !exists && l.OnNewSession != nil {
		l.OnNewSession(ann.StreamIP, ann.Port)
	}
}

// PropertiesForSSRC looks up SDP-derived properties by SSRC.
func (l *Listener) PropertiesForSSRC(ssrc uint32) (wire.StreamProperties, bool) {
	l.ssrcMu.RLock()
	defer l.ssrcMu.RUnlock()
	p, ok := l.byssrc[ssrc]
	return p, ok
}

// AnnouncementForSSRC looks up the full resolved announcement by SSRC,
// used by the receiver to derive an emitted packet's source tag from the
// session's routing sink or GUID.
func (l *Listener) AnnouncementForSSRC(ssrc uint32) (Announcement, bool) {
	l.ssrcMu.RLock()
	defer l.ssrcMu.RUnlock()
	ann, ok := l.annsBySSRC[ssrc]
	return ann, ok
}

// PropertiesForEndpoint looks up SDP-derived properties by "ip:port".
func (l *Listener) PropertiesForEndpoint(ip string, port int) (wire.StreamProperties, bool) {
	key := fmt.Sprintf("%s:%d", ip, port)
	l.endpointMu.RLock()
	defer l.endpointMu.RUnlock()
	p, ok := l.byendpoint[key]
	return p, ok
}

// Announcements returns a snapshot of all currently indexed announcements,
// keyed by "ip:port".
func (l *Listener) Announcements() map[string]Announcement {
	l.endpointMu.RLock()
	defer l.endpointMu.RUnlock()
	out := make(map[string]Announcement, len(l.anns))
	for k, v := range l.anns {
		out[k] = v
	}
	return out
}

// ClearSSRC removes an SSRC's cached properties, e.g. when its source
// endpoint changes SSRC.
func (l *Listener) ClearSSRC(ssrc uint32) {
	l.ssrcMu.Lock()
	defer l.ssrcMu.Unlock()
	delete(l.byssrc, ssrc)
	delete(l.annsBySSRC, ssrc)
}
