// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package sap

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// sessionDescription is a minimal line-oriented SDP document: a map of
// type to parsed values, CRLF/LF tolerant, carrying the fields SAP
// announcements need: o=, c=, m=audio, a=rtpmap, a=fmtp and the
// x-screamrouter-target hint.
type sessionDescription struct {
	origin     origin
	connection connectionInfo
	mediaPort  int
	mediaProto string
	formats    []string
	rtpmaps    map[int]rtpMap
	fmtps      map[int]map[string]string
	target     *routingHint
}

type origin struct {
	user      string
	sessionID uint64
}

type connectionInfo struct {
	ip net.IP
}

type rtpMap struct {
	encoding string
	rate     uint32
	channels int
}

type routingHint struct {
	sink string
	host string
}

// parseSDP parses an SDP body per RFC 4566, tolerant of CRLF or LF line
// endings and case-insensitive codec names.
func parseSDP(body []byte) (sessionDescription, error) {
	sd := sessionDescription{
		rtpmaps: make(map[int]rtpMap),
		fmtps:   make(map[int]map[string]string),
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		key, value := line[0], line[2:]

		switch key {
		case 'o':
			if o, err := parseOrigin(value); err == nil {
				sd.origin = o
			}
		case 'c':
			if ci, err := parseConnection(value); err == nil {
				sd.connection = ci
			}
		case 'm':
			if err := sd.parseMedia(value); err != nil {
				return sd, err
			}
		case 'a':
			sd.parseAttribute(value)
		}
	}

	return sd, scanner.Err()
}

func parseOrigin(v string) (origin, error) {
	fields := strings.Fields(v)
	if len(fields) < 2 {
		return origin{}, fmt.Errorf("sap: malformed o= line %q", v)
	}
	sessID, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return origin{}, fmt.Errorf("sap: malformed session id in o= line: %w", err)
	}
	return origin{user: fields[0], sessionID: sessID}, nil
}

func parseConnection(v string) (connectionInfo, error) {
	fields := strings.Fields(v)
	if len(fields) < 3 || fields[0] != "IN" {
		return connectionInfo{}, fmt.Errorf("sap: malformed c= line %q", v)
	}
	addr := strings.Split(fields[2], "/")[0]
	ip := net.ParseIP(addr)
	if ip == nil {
		return connectionInfo{}, fmt.Errorf("sap: invalid connection address %q", addr)
	}
	return connectionInfo{ip: ip}, nil
}

func (sd *sessionDescription) parseMedia(v string) error {
	fields := strings.Fields(v)
	if len(fields) < 4 || fields[0] != "audio" {
		return nil
	}

	portField := strings.Split(fields[1], "/")[0]
	port, err := strconv.Atoi(portField)
	if err != nil {
		return fmt.Errorf("sap: malformed m= port %q", fields[1])
	}

	sd.mediaPort = port
	sd.mediaProto = fields[2]
	sd.formats = append([]string{}, fields[3:]...)
	return nil
}

func (sd *sessionDescription) parseAttribute(v string) {
	switch {
	case strings.HasPrefix(v, "rtpmap:"):
		sd.parseRtpmap(strings.TrimPrefix(v, "rtpmap:"))
	case strings.HasPrefix(v, "fmtp:"):
		sd.parseFmtp(strings.TrimPrefix(v, "fmtp:"))
	case strings.HasPrefix(v, "x-screamrouter-target:"):
		sd.parseTarget(strings.TrimPrefix(v, "x-screamrouter-target:"))
	}
}

// a=rtpmap:<pt> <encoding>/<rate>[/<channels>]
func (sd *sessionDescription) parseRtpmap(v string) {
	sp := strings.IndexByte(v, ' ')
	if sp < 0 {
		return
	}
	pt, err := strconv.Atoi(v[:sp])
	if err != nil {
		return
	}

	parts := strings.Split(v[sp+1:], "/")
	if len(parts) < 2 {
		return
	}
	rate, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return
	}

	m := rtpMap{encoding: strings.ToUpper(parts[0]), rate: uint32(rate), channels: 1}
	if len(parts) >= 3 {
		if ch, err := strconv.Atoi(parts[2]); err == nil {
			m.channels = ch
		}
	}
	sd.rtpmaps[pt] = m
}

// a=fmtp:<pt> k=v;k=v;...
func (sd *sessionDescription) parseFmtp(v string) {
	sp := strings.IndexByte(v, ' ')
	if sp < 0 {
		return
	}
	pt, err := strconv.Atoi(v[:sp])
	if err != nil {
		return
	}

	params := make(map[string]string)
	for _, kv := range strings.Split(v[sp+1:], ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(kv[:eq]))] = strings.TrimSpace(kv[eq+1:])
	}
	sd.fmtps[pt] = params
}

// a=x-screamrouter-target:sink=X;host=Y
func (sd *sessionDescription) parseTarget(v string) {
	hint := routingHint{}
	for _, kv := range strings.Split(v, ";") {
		kv = strings.TrimSpace(kv)
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		k, val := strings.ToLower(strings.TrimSpace(kv[:eq])), strings.TrimSpace(kv[eq+1:])
		switch k {
		case "sink":
			hint.sink = val
		case "host":
			hint.host = val
		}
	}
	sd.target = &hint
}
