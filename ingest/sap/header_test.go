// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package sap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sapHeaderBytes(authLen int) []byte {
	hdr := []byte{0x20, byte(authLen), 0x00, 0x00, 10, 0, 0, 1}
	for i := 0; i < authLen*4; i++ {
		hdr = append(hdr, 0)
	}
	return hdr
}

func TestParseSAPHeaderWithMimeType(t *testing.T) {
	data := append(sapHeaderBytes(0), []byte("application/sdp\x00v=0\r\n")...)
	body, err := parseSAPHeader(data)
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\n", string(body))
}

func TestParseSAPHeaderNoMimeType(t *testing.T) {
	data := append(sapHeaderBytes(0), []byte("v=0\r\nc=IN IP4 239.1.1.1\r\n")...)
	body, err := parseSAPHeader(data)
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\nc=IN IP4 239.1.1.1\r\n", string(body))
}

func TestParseSAPHeaderWithAuthData(t *testing.T) {
	data := append(sapHeaderBytes(2), []byte("v=0\r\n")...)
	body, err := parseSAPHeader(data)
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\n", string(body))
}

func TestParseSAPHeaderTooShort(t *testing.T) {
	_, err := parseSAPHeader([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestParseSAPHeaderUnsupportedVersion(t *testing.T) {
	data := sapHeaderBytes(0)
	data[0] = 0x40 // version 2
	_, err := parseSAPHeader(append(data, []byte("v=0\r\n")...))
	assert.Error(t, err)
}
