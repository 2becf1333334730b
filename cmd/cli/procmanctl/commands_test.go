package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	env, err := parseEnv([]string{"A=1", "B=x=y", "EMPTY="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "EMPTY": ""}, env)

	_, err = parseEnv([]string{"=nokey"})
	assert.Error(t, err)
	_, err = parseEnv([]string{"novalue"})
	assert.Error(t, err)
}

func TestBytesPayload(t *testing.T) {
	defer func() { messageHex, messageFile = "", "" }()

	data, isBytes, err := bytesPayload()
	require.NoError(t, err)
	assert.False(t, isBytes)
	assert.Nil(t, data)

	messageHex = "00ff10"
	data, isBytes, err = bytesPayload()
	require.NoError(t, err)
	assert.True(t, isBytes)
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, data)

	messageHex = "zz"
	_, _, err = bytesPayload()
	assert.Error(t, err)

	messageHex, messageFile = "00", "payload.bin"
	_, _, err = bytesPayload()
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range []string{"add", "start", "stop", "remove", "send", "broadcast", "list"} {
		assert.True(t, names[name], "missing subcommand %s", name)
	}
}
