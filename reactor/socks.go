// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package reactor

import (
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// SOCKS5Dialer returns a Dial function that routes connections through a
// SOCKS5 proxy at proxyAddr (a Tor daemon's SOCKS port, typically), so the
// reactor can reach .onion peers the same way it reaches clearnet ones.
func SOCKS5Dialer(proxyAddr, username, password string) (func(network, addr string) (net.Conn, error), error) {
	var auth *proxy.Auth
	if username != "" {
		auth = &proxy.Auth{User: username, Password: password}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("reactor: configuring SOCKS5 dialer: %w", err)
	}

	return func(network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}
