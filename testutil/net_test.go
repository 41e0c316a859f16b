/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitListeningServer(t *testing.T) {
	addr := GetLocalAddrWithFreeTCPPort()
	require.Error(t, WaitListeningServer(addr, 50*time.Millisecond))

	listener, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer func() { require.NoError(t, listener.Close()) }()
	require.NoError(t, WaitListeningServer(addr, time.Second))
}

func TestWaitPortAndListeningServer(t *testing.T) {
	var boundPort int32
	getPort := func() int { return int(atomic.LoadInt32(&boundPort)) }

	_, err := WaitPortAndListeningServer("127.0.0.1", getPort, 50*time.Millisecond)
	require.ErrorIs(t, err, errPortUnknown)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { require.NoError(t, listener.Close()) }()
	wantPort := listener.Addr().(*net.TCPAddr).Port
	time.AfterFunc(30*time.Millisecond, func() { atomic.StoreInt32(&boundPort, int32(wantPort)) }) //nolint:gosec

	port, err := WaitPortAndListeningServer("127.0.0.1", getPort, time.Second)
	require.NoError(t, err)
	require.Equal(t, wantPort, port)
}
