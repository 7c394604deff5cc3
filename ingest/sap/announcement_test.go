// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package sap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceflow/rtpingest/ingest/wire"
)

func TestResolveAnnouncementPrefersOpusOverPCM(t *testing.T) {
	sd, err := parseSDP([]byte(
		"v=0\r\n" +
			"o=- 1001 1001 IN IP4 10.0.0.1\r\n" +
			"c=IN IP4 239.3.3.3\r\n" +
			"m=audio 6004 RTP/AVP 98 111\r\n" +
			"a=rtpmap:98 L16/48000/2\r\n" +
			"a=rtpmap:111 OPUS/48000/2\r\n"))
	require.NoError(t, err)

	ann, err := resolveAnnouncement(sd, "10.0.0.1")
	require.NoError(t, err)

	assert.Equal(t, "239.3.3.3", ann.StreamIP)
	assert.Equal(t, 6004, ann.Port)
	assert.Equal(t, wire.CodecOpus, ann.Properties.Codec)
	assert.Equal(t, uint32(1001), ann.SSRC)
	assert.NotEmpty(t, ann.SessionGUID)

	ann2, err := resolveAnnouncement(sd, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, ann.SessionGUID, ann2.SessionGUID, "GUID must be stable across re-announcements of the same session")
}

func TestResolveAnnouncementSixChannelOpusMultistream(t *testing.T) {
	sd, err := parseSDP([]byte(
		"v=0\r\n" +
			"o=- 55 55 IN IP4 10.0.0.9\r\n" +
			"c=IN IP4 239.4.4.4\r\n" +
			"m=audio 7000 RTP/AVP 111\r\n" +
			"a=rtpmap:111 OPUS/48000/6\r\n" +
			"a=fmtp:111 mapping_family=1; streams=4; coupled_streams=2; channel_mapping=0,4,1,2,3,5\r\n"))
	require.NoError(t, err)

	ann, err := resolveAnnouncement(sd, "10.0.0.9")
	require.NoError(t, err)

	assert.Equal(t, 6, ann.Properties.Channels)
	assert.Equal(t, 4, ann.Properties.OpusStreams)
	assert.Equal(t, 2, ann.Properties.OpusCoupledStreams)
	assert.Equal(t, []byte{0, 4, 1, 2, 3, 5}, ann.Properties.OpusChannelMapping)
}

func TestResolveAnnouncementMissingConnectionErrors(t *testing.T) {
	sd, err := parseSDP([]byte("v=0\r\nm=audio 5004 RTP/AVP 0\r\na=rtpmap:0 PCMU/8000\r\n"))
	require.NoError(t, err)

	_, err = resolveAnnouncement(sd, "10.0.0.1")
	assert.Error(t, err)
}

func TestCodecFromEncodingMapsKnownNames(t *testing.T) {
	c, e, bits := codecFromEncoding("L24")
	assert.Equal(t, wire.CodecPCM, c)
	assert.Equal(t, wire.BigEndian, e)
	assert.Equal(t, 24, bits)

	c, e, bits = codecFromEncoding("S16LE")
	assert.Equal(t, wire.CodecPCM, c)
	assert.Equal(t, wire.LittleEndian, e)
	assert.Equal(t, 16, bits)
}
