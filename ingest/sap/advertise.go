// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package sap

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

// AdvertiseSpec describes one locally-originated session to advertise via
// periodic SAP multicast announcements.
type AdvertiseSpec struct {
	// SessionID seeds both the SAP message-id hash and the SDP o= line's
	// session-id; the SSRC other listeners resolve is session_id mod 2^32,
	// mirroring how resolveAnnouncement derives it on the receive side.
	SessionID uint32

	AnnouncerIP string
	StreamIP    string
	Port        int
	Properties  wire.StreamProperties

	TargetSink string
	TargetHost string
}

// encodingForCodec is the inverse of codecFromEncoding: the rtpmap encoding
// name to advertise for a given codec/endianness pair.
func encodingForCodec(c wire.Codec, end wire.Endianness, bitDepth int) string {
	switch c {
	case wire.CodecOpus:
		return "OPUS"
	case wire.CodecPCMU:
		return "PCMU"
	case wire.CodecPCMA:
		return "PCMA"
	case wire.CodecPCM:
		if end == wire.LittleEndian && bitDepth == 16 {
			return "S16LE"
		}
		if bitDepth == 24 {
			return "L24"
		}
		return "L16"
	default:
		return "L16"
	}
}

// buildSDP renders the SDP body advertised for spec, in the same line set
// resolveAnnouncement knows how to parse back (o=/c=/m=/a=rtpmap/a=fmtp/
// a=x-screamrouter-target).
func buildSDP(spec AdvertiseSpec) []byte {
	pt := int(spec.Properties.PayloadType)
	encoding := encodingForCodec(spec.Properties.Codec, spec.Properties.Endianness, spec.Properties.BitDepth)

	rtpmap := fmt.Sprintf("a=rtpmap:%d %s/%d", pt, encoding, spec.Properties.SampleRate)
	if spec.Properties.Channels > 1 {
		rtpmap += fmt.Sprintf("/%d", spec.Properties.Channels)
	}

	sdp := fmt.Sprintf(
		"v=0\r\n"+
			"o=- %d %d IN IP4 %s\r\n"+
			"s=rtpingest\r\n"+
			"c=IN IP4 %s\r\n"+
			"t=0 0\r\n"+
			"m=audio %d RTP/AVP %d\r\n"+
			"%s\r\n",
		spec.SessionID, spec.SessionID, spec.AnnouncerIP, spec.StreamIP, spec.Port, pt, rtpmap,
	)

	if spec.Properties.OpusMappingFamily != 0 || spec.Properties.OpusStreams != 0 {
		fmtp := fmt.Sprintf("a=fmtp:%d channels=%d;mapping_family=%d;streams=%d;coupled_streams=%d",
			pt, spec.Properties.Channels, spec.Properties.OpusMappingFamily,
			spec.Properties.OpusStreams, spec.Properties.OpusCoupledStreams)
		if len(spec.Properties.OpusChannelMapping) > 0 {
			fmtp += ";channel_mapping="
			for i, b := range spec.Properties.OpusChannelMapping {
				if i > 0 {
					fmtp += ","
				}
				fmtp += fmt.Sprintf("%d", b)
			}
		}
		sdp += fmtp + "\r\n"
	}

	if spec.TargetSink != "" || spec.TargetHost != "" {
		sdp += fmt.Sprintf("a=x-screamrouter-target:sink=%s;host=%s\r\n", spec.TargetSink, spec.TargetHost)
	}

	return []byte(sdp)
}

// encodeSAPHeader builds the fixed RFC 2974 header (no auth, IPv4 source
// address, no payload-type string since the body already starts "v=").
func encodeSAPHeader(msgID uint16, announcer net.IP) []byte {
	buf := make([]byte, 8)
	buf[0] = 1 << 5 // version 1, A=0 R=0 T=0 E=0 C=0
	buf[1] = 0      // auth_len
	buf[2] = byte(msgID >> 8)
	buf[3] = byte(msgID)
	ip4 := announcer.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	copy(buf[4:8], ip4)
	return buf
}

// advertisement tracks one running periodic-send loop so Advertise can be
// stopped individually or torn down along with the listener. stopOnce
// guards against both the returned stop func and stopAdvertising racing
// to close stopCh.
type advertisement struct {
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func (a *advertisement) requestStop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
}

// Advertise begins sending periodic SAP announcements for spec to the
// well-known multicast groups, at the given interval, until the returned
// stop function is called or the listener is stopped. It returns an error
// only if no outbound socket could be opened.
func (l *Listener) Advertise(spec AdvertiseSpec, interval time.Duration) (stop func(), err error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("sap: advertise: open send socket: %w", err)
	}

	adv := &advertisement{stopCh: make(chan struct{}), done: make(chan struct{})}

	l.advMu.Lock()
	if l.adverts == nil {
		l.adverts = make(map[*advertisement]struct{})
	}
	l.adverts[adv] = struct{}{}
	l.advMu.Unlock()

	go func() {
		defer close(adv.done)
		defer conn.Close()

		l.sendAdvertisement(conn, spec)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-adv.stopCh:
				return
			case <-ticker.C:
				l.sendAdvertisement(conn, spec)
			}
		}
	}()

	return func() {
		l.advMu.Lock()
		delete(l.adverts, adv)
		l.advMu.Unlock()
		adv.requestStop()
		<-adv.done
	}, nil
}

func (l *Listener) sendAdvertisement(conn *net.UDPConn, spec AdvertiseSpec) {
	header := encodeSAPHeader(uint16(spec.SessionID), net.ParseIP(spec.AnnouncerIP))
	packet := append(header, buildSDP(spec)...)

	for _, group := range Groups {
		dst := &net.UDPAddr{IP: net.ParseIP(group), Port: Port}
		if _, err := conn.WriteToUDP(packet, dst); err != nil {
			l.log.Debug().Err(err).Str("group", group).Msg("failed to send SAP advertisement")
		}
	}
}

// stopAdvertising tears down every running Advertise loop, called from Stop.
func (l *Listener) stopAdvertising() {
	l.advMu.Lock()
	adverts := make([]*advertisement, 0, len(l.adverts))
	for a := range l.adverts {
		adverts = append(adverts, a)
	}
	l.adverts = nil
	l.advMu.Unlock()

	for _, a := range adverts {
		a.requestStop()
		<-a.done
	}
}
