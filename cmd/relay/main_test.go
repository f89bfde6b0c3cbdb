package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagSpellings(t *testing.T) {
	for _, args := range [][]string{
		{"-t", "123:abc", "-O", "42", "-vv"},
		{"--api-token", "123:abc", "--owner-id", "42", "-v", "-v"},
		{"--token", "123:abc", "--owner", "42", "--verbose", "--verbose"},
		{"--token", "123:abc", "--owner", "42", "--verbosity", "--verbosity"},
	} {
		cmd := newRootCmd()
		require.NoError(t, cmd.ParseFlags(args), args)

		f := cmd.Flags()
		token, err := f.GetString("api-token")
		require.NoError(t, err)
		owner, err := f.GetInt64("owner-id")
		require.NoError(t, err)
		verbose, err := f.GetCount("verbose")
		require.NoError(t, err)

		assert.Equal(t, "123:abc", token, args)
		assert.Equal(t, int64(42), owner, args)
		assert.Equal(t, 2, verbose, args)
		assert.True(t, f.Changed("api-token"))
	}
}
