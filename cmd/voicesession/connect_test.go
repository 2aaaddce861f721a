package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carevox/voicesession/pkg/connection"
)

func TestNewConnectionManager_BootstrapsFromHandOff(t *testing.T) {
	m := newConnectionManager(connectConfig{
		Server: "wss://example.test",
		Room:   "test-room",
		Token:  "tok",
	})

	details, ok := m.Current()
	require.True(t, ok)
	require.Equal(t, "test-room", details.RoomName)
	require.Equal(t, connection.DefaultParticipantName, details.ParticipantName)
}

func TestNewConnectionManager_FailsWithoutHandOffOrIssuer(t *testing.T) {
	m := newConnectionManager(connectConfig{})

	_, err := m.CurrentOrRefreshed(context.Background())
	require.ErrorIs(t, err, connection.ErrMissingCredential)
}
