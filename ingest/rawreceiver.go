// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package ingest

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/sourceflow/rtpingest/ingest/layout"
	"github.com/sourceflow/rtpingest/ingest/wire"
	"github.com/sourceflow/rtpingest/internal/udpsock"
)

// screamFrameSize is the fixed Scream sibling-protocol frame: a 5-byte
// header (sample rate/bit depth/channels/chunk size marker) followed by
// 1152 bytes of 16-bit stereo PCM at 48kHz.
const screamFrameSize = 1157
const screamHeaderSize = 5
const screamSampleRate = 48000
const screamChannels = 2
const screamBitDepth = 16

// rawReceiver is a minimal UDP receiver for the Scream sibling protocol:
// fixed-size frames, no RTP header, straight to a TaggedAudioPacket.
type rawReceiver struct {
	port int
	conn *net.UDPConn
	log  zerolog.Logger

	publish func(wire.TaggedAudioPacket)
	drops   *DropCounter

	stopCh chan struct{}
	doneCh chan struct{}
}

func newRawReceiver(port int, log zerolog.Logger, publish func(wire.TaggedAudioPacket), drops *DropCounter) (*rawReceiver, error) {
	conn, err := udpsock.Listen("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen udp :%d: %w", port, err)
	}
	return &rawReceiver{
		port:    port,
		conn:    conn,
		log:     log.With().Str("caller", "rawreceiver").Int("port", port).Logger(),
		publish: publish,
		drops:   drops,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

func (rr *rawReceiver) start() {
	go rr.loop()
}

func (rr *rawReceiver) stop() {
	close(rr.stopCh)
	rr.conn.Close()
	<-rr.doneCh
}

func (rr *rawReceiver) loop() {
	defer close(rr.doneCh)

	buf := make([]byte, screamFrameSize)
	mask := layout.MaskForChannels(screamChannels)
	lo, hi := layout.Split(mask)

	for {
		select {
		case <-rr.stopCh:
			return
		default:
		}

		rr.conn.SetReadDeadline(time.Now().Add(eventLoopTimeout))
		n, addr, err := rr.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		if n != screamFrameSize {
			rr.drops.inc(dropMalformed)
			rr.log.Debug().Int("n", n).Msg("scream frame wrong size, dropping")
			continue
		}

		audio := make([]byte, n-screamHeaderSize)
		copy(audio, buf[screamHeaderSize:n])

		rr.publish(wire.TaggedAudioPacket{
			SourceTag:    addr.String(),
			ReceivedTime: time.Now(),
			SampleRate:   screamSampleRate,
			Channels:     screamChannels,
			BitDepth:     screamBitDepth,
			ChLayout1:    lo,
			ChLayout2:    hi,
			AudioData:    audio,
			IsSentinel:   false,
		})
	}
}
