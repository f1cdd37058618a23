// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package pulse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relay-foundation/pulsehub/lib/broker"
)

func TestBuildBodyRoundTrips(t *testing.T) {
	body, err := BuildBody("delta", "repo:delta", map[string]any{"action": "fixed"}, nil, DefaultMaxMessageSize)
	require.NoError(t, err)

	parsed, err := Parse(body)
	require.NoError(t, err)
	require.Equal(t, "delta", parsed.Type)
	require.Equal(t, "repo:delta", parsed.Channel)
	require.NotEqual(t, [16]byte{}, parsed.ID)
}

func TestBuildBodyTooLarge(t *testing.T) {
	data := strings.Repeat("x", 2048)
	_, err := BuildBody("delta", "c:c", data, nil, 1024)

	require.Error(t, err)
	require.True(t, broker.IsTooLarge(err))
}

func TestBase64WrapUnwrapRoundTrip(t *testing.T) {
	original := []byte(`{"hello":"world"}`)
	wrapped := Base64Wrap(original)

	unwrapped, err := Base64Unwrap(wrapped)
	require.NoError(t, err)
	require.Equal(t, original, unwrapped)
}

func TestBase64UnwrapBadEncoding(t *testing.T) {
	_, err := Base64Unwrap("not valid base64!!!")

	require.Error(t, err)
	require.True(t, broker.IsBadEncoding(err))
}

func TestCheckSizeExactlyAtCap(t *testing.T) {
	body := make([]byte, 1024)
	require.NoError(t, CheckSize(body, 1024))

	body = make([]byte, 1025)
	require.Error(t, CheckSize(body, 1024))
}
