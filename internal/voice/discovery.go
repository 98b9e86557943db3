// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// DiscoverIP performs Discord's UDP IP discovery: a 74-byte request
// (type 0x1, length 70, SSRC, 66 zero bytes) answered with our public
// IPv4 address as a NUL-terminated ASCII string plus a u16 port.
func DiscoverIP(conn *net.UDPConn, peer *net.UDPAddr, ssrc uint32) (string, uint16, error) {
	req := make([]byte, 74)
	binary.BigEndian.PutUint16(req[0:2], 0x1)
	binary.BigEndian.PutUint16(req[2:4], 70)
	binary.BigEndian.PutUint32(req[4:8], ssrc)

	if _, err := conn.WriteToUDP(req, peer); err != nil {
		return "", 0, fmt.Errorf("ip discovery send: %w", err)
	}

	resp := make([]byte, 74)
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return "", 0, err
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		n, from, err := conn.ReadFromUDP(resp)
		if err != nil {
			return "", 0, fmt.Errorf("ip discovery recv: %w", err)
		}
		if from.Port != peer.Port || !from.IP.Equal(peer.IP) {
			continue
		}
		if n < 74 || binary.BigEndian.Uint16(resp[0:2]) != 0x2 {
			continue
		}

		addrBytes := resp[8:72]
		end := bytes.IndexByte(addrBytes, 0)
		if end < 0 {
			end = len(addrBytes)
		}
		ip := string(addrBytes[:end])
		if net.ParseIP(ip) == nil {
			return "", 0, errors.New("ip discovery: malformed address")
		}
		port := binary.BigEndian.Uint16(resp[72:74])
		return ip, port, nil
	}
}
