/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/budzeciak/rpc-proxy/retry"
)

var errPortUnknown = errors.New("server has not bound a port yet")

var pollPolicy = retry.Policy{InitialInterval: 10 * time.Millisecond, MaxInterval: 100 * time.Millisecond}

// GetLocalAddrWithFreeTCPPort returns 127.0.0.1:<port> where the port was free at the moment of the call.
func GetLocalAddrWithFreeTCPPort() string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	addr := listener.Addr().String()
	if err = listener.Close(); err != nil {
		panic(err)
	}
	return addr
}

// WaitListeningServer waits until addr accepts TCP connections.
func WaitListeningServer(addr string, timeout time.Duration) error {
	return poll(timeout, func(ctx context.Context) error {
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	})
}

// WaitPortAndListeningServer is for servers started on port 0: it waits until getPort reports the bound port,
// then until host:port accepts TCP connections. The timeout applies to each stage.
func WaitPortAndListeningServer(host string, getPort func() int, timeout time.Duration) (int, error) {
	var port int
	err := poll(timeout, func(context.Context) error {
		if port = getPort(); port <= 0 {
			return errPortUnknown
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return port, WaitListeningServer(net.JoinHostPort(host, strconv.Itoa(port)), timeout)
}

func poll(timeout time.Duration, check func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var lastErr error
	err := retry.Do(ctx, pollPolicy, func(ctx context.Context) error {
		lastErr = check(ctx)
		return lastErr
	}, retry.Opts{})
	if err != nil {
		return fmt.Errorf("gave up waiting after %s: %w", timeout, errors.Join(lastErr, err))
	}
	return nil
}
