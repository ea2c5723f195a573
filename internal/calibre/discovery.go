/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package calibre

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"papyrix/internal/papyrixerr"
)

// Discovered is the (host, port) pair a successful discovery resolves,
// ready for a subsequent Dial.
type Discovered struct {
	Host string
	Port int
}

// Discover broadcasts "hello" to ports every DiscoveryInterval, up to
// MaxDiscoveryBroadcasts times, and returns the first peer whose reply
// contains "calibre" and a trailing comma-delimited port number. Cancelling
// ctx aborts the wait between broadcasts (spec.md §5's "long discovery
// waits poll per 500 ms interval").
func Discover(ctx context.Context, ports []int, log *slog.Logger) (Discovered, error) {
	if len(ports) == 0 {
		ports = DiscoveryPorts[:]
	}
	if log == nil {
		log = slog.Default()
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return Discovered{}, papyrixerr.Wrap(papyrixerr.KindIOError, err, "calibre: open discovery socket")
	}
	defer conn.Close()
	_ = conn.SetBroadcast(true)

	buf := make([]byte, 512)
	for attempt := 0; attempt < MaxDiscoveryBroadcasts; attempt++ {
		for _, port := range ports {
			dst := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
			if _, err := conn.WriteTo([]byte(DiscoveryBroadcastMsg), dst); err != nil {
				log.Debug("calibre discovery broadcast failed", "port", port, "err", err)
			}
		}

		_ = conn.SetReadDeadline(time.Now().Add(DiscoveryInterval))
		n, raddr, err := conn.ReadFromUDP(buf)
		if err == nil {
			if port, ok := parseCalibreResponse(string(buf[:n])); ok {
				return Discovered{Host: raddr.IP.String(), Port: port}, nil
			}
			continue
		}
		if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
			return Discovered{}, papyrixerr.Wrap(papyrixerr.KindIOError, err, "calibre: discovery read")
		}

		select {
		case <-ctx.Done():
			return Discovered{}, papyrixerr.Wrap(papyrixerr.KindCancelled, ctx.Err(), "calibre: discovery cancelled")
		default:
		}
	}
	return Discovered{}, papyrixerr.New(papyrixerr.KindTimeout, "calibre: no response after %d broadcasts", MaxDiscoveryBroadcasts)
}

// parseCalibreResponse extracts the trailing port number from a reply of
// the shape "calibre wireless device client (on <host>);<content_port>,<smart_device_port>".
func parseCalibreResponse(s string) (int, bool) {
	if !strings.Contains(s, "calibre") {
		return 0, false
	}
	idx := strings.LastIndexByte(s, ',')
	if idx < 0 || idx == len(s)-1 {
		return 0, false
	}
	numStr := strings.TrimSpace(s[idx+1:])
	port, err := strconv.Atoi(numStr)
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

// Dial opens the TCP connection to a discovered peer.
func Dial(ctx context.Context, d Discovered) (net.Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(d.Host, strconv.Itoa(d.Port)))
	if err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "calibre: dial %s:%d", d.Host, d.Port)
	}
	return conn, nil
}
