// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package wire

import (
	"fmt"
	"time"

	"github.com/pion/rtp"
)

// minRTPHeaderSize is the minimum valid RTP header length (RFC 3550
// section 5.1): version/flags, payload type, sequence, timestamp, SSRC.
const minRTPHeaderSize = 12

// ParseRTPPacket parses a raw UDP datagram into RtpPacketData. It rejects
// anything shorter than the RTP minimum header and reuses pion/rtp for
// header unmarshaling, copying the payload out so the caller's read
// buffer can be reused.
func ParseRTPPacket(buf []byte, receivedTime time.Time) (RtpPacketData, error) {
	if len(buf) < minRTPHeaderSize {
		return RtpPacketData{}, fmt.Errorf("rtp: packet too short (%d bytes)", len(buf))
	}

	var hdr rtp.Header
	n, err := hdr.Unmarshal(buf)
	if err != nil {
		return RtpPacketData{}, fmt.Errorf("rtp: header unmarshal: %w", err)
	}

	end := len(buf)
	if hdr.Padding && end > 0 {
		padLen := int(buf[end-1])
		end -= padLen
		if end < n {
			return RtpPacketData{}, fmt.Errorf("rtp: padding exceeds packet length")
		}
	}

	// Extension headers are skipped (unmarshal already advances past them
	// via hdr.Unmarshal); extension contents are not interpreted.

	payload := make([]byte, end-n)
	copy(payload, buf[n:end])

	csrcs := make([]uint32, len(hdr.CSRC))
	copy(csrcs, hdr.CSRC)

	return RtpPacketData{
		SequenceNumber: hdr.SequenceNumber,
		RTPTimestamp:   hdr.Timestamp,
		SSRC:           hdr.SSRC,
		CSRCs:          csrcs,
		PayloadType:    hdr.PayloadType,
		ReceivedTime:   receivedTime,
		Payload:        payload,
	}, nil
}
