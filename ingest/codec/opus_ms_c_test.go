//go:build with_opus_ms

// SPDX-License-Identifier: MPL-2.0
// SPDX-FileCopyrightText: Copyright (c) 2025, Emir Aganovic

package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultistreamDecoderCreateAndClose(t *testing.T) {
	dec, err := newMultistreamDecoder(48000, 6, 4, 2, []byte{0, 4, 1, 2, 3, 5})
	require.NoError(t, err)
	require.NotNil(t, dec)

	dec.Close()
	dec.Close() // second close is a no-op

	_, err = dec.Decode([]byte{0x01}, make([]int16, 6))
	assert.Error(t, err, "decode after close must fail")
}

func TestMultistreamDecoderRejectsBadMapping(t *testing.T) {
	_, err := newMultistreamDecoder(48000, 6, 4, 2, []byte{0, 1})
	assert.Error(t, err)
}
