package transport

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pion/stun/v3"
)

// DiscoverPublicAddr uses STUN to discover the public IP:port so a
// responder can print the endpoint initiators should dial. The protocol
// itself never reacts to address changes.
func DiscoverPublicAddr(stunServers []string, log *slog.Logger) (*net.UDPAddr, error) {
	if len(stunServers) == 0 {
		return nil, fmt.Errorf("no STUN servers configured")
	}

	for _, server := range stunServers {
		addr, err := stunDiscover(server)
		if err != nil {
			log.Debug("STUN discovery failed", "server", server, "err", err)
			continue
		}
		log.Info("STUN discovered public address", "addr", addr, "server", server)
		return addr, nil
	}
	return nil, fmt.Errorf("all STUN servers failed")
}

// stunDiscover performs a single STUN binding request.
func stunDiscover(serverAddr string) (*net.UDPAddr, error) {
	conn, err := net.DialTimeout("udp", serverAddr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	// Build STUN binding request
	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)

	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(msg.Raw); err != nil {
		return nil, err
	}

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}

	// Parse response
	resp := new(stun.Message)
	resp.Raw = buf[:n]
	if err := resp.Decode(); err != nil {
		return nil, err
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(resp); err != nil {
		// Try regular mapped address
		var mappedAddr stun.MappedAddress
		if err := mappedAddr.GetFrom(resp); err != nil {
			return nil, fmt.Errorf("no mapped address in STUN response")
		}
		return &net.UDPAddr{IP: mappedAddr.IP, Port: mappedAddr.Port}, nil
	}
	return &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}, nil
}
