package cryptobox_test

import (
	"encoding/base64"
	"testing"

	"github.com/podwatch-dev/podwatch/internal/cryptobox"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestBox_SealOpenRoundTrip(t *testing.T) {
	box, err := cryptobox.New(testKey())
	require.NoError(t, err)

	plaintext := []byte(`{"accessToken":"secret-token"}`)
	sealed, err := box.Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestBox_OpenRejectsTamperedPayload(t *testing.T) {
	box, err := cryptobox.New(testKey())
	require.NoError(t, err)

	sealed, err := box.Seal([]byte("payload"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = box.Open(sealed)
	require.Error(t, err)
}

func TestBox_NilBoxPassesThrough(t *testing.T) {
	var box *cryptobox.Box

	payload := []byte("plain")
	sealed, err := box.Seal(payload)
	require.NoError(t, err)
	require.Equal(t, payload, sealed)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, payload, opened)
}

func TestNewFromString(t *testing.T) {
	box, err := cryptobox.NewFromString("")
	require.NoError(t, err)
	require.Nil(t, box)

	box, err = cryptobox.NewFromString(base64.StdEncoding.EncodeToString(testKey()))
	require.NoError(t, err)
	require.NotNil(t, box)

	_, err = cryptobox.NewFromString("not-base64!!!")
	require.Error(t, err)

	_, err = cryptobox.NewFromString(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)
}
