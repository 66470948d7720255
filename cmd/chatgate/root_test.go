package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "token", "version"}, names)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "chatgate dev")
}

func TestTokenCommandRequiresOperator(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetArgs([]string{"token"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--operator")
}

func TestParseExpiresIn(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 24 * time.Hour},
		{raw: "90m", want: 90 * time.Minute},
		{raw: " 2h ", want: 2 * time.Hour},
		{raw: "soon", wantErr: true},
		{raw: "-1h", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseExpiresIn(tc.raw)
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got)
	}
}

func TestConfigPathPrefersFlag(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/chatgate/env.toml")

	assert.Equal(t, "/tmp/flag.toml", configPath(" /tmp/flag.toml "))
	assert.Equal(t, "/etc/chatgate/env.toml", configPath(""))
}
