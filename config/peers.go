package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Peer is one entry of a persistent peers list, id@[proto://]host[:port].
type Peer struct {
	ID      string
	Proto   string
	Address string
	Port    *int
}

var peerPattern = regexp.MustCompile(`^([a-fA-F0-9]+)@((?:[a-zA-Z]+://)?(?:\[[^\]]+\]|[^:]+))(?:[:](\d+))?$`)

// ParsePeerList splits a comma separated persistent peers list.
func ParsePeerList(input string) ([]Peer, error) {
	var result []Peer
	for _, entry := range strings.Split(input, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		m := peerPattern.FindStringSubmatch(entry)
		if m == nil {
			return nil, fmt.Errorf("invalid peer: %s", entry)
		}

		p := Peer{ID: m[1], Address: m[2]}
		if proto, addr, ok := strings.Cut(m[2], "://"); ok {
			p.Proto, p.Address = proto, addr
		}
		if m[3] != "" {
			port, err := strconv.Atoi(m[3])
			if err != nil || port > 65535 {
				return nil, fmt.Errorf("invalid port in peer: %s", entry)
			}
			p.Port = &port
		}
		result = append(result, p)
	}
	return result, nil
}

// ParsePeers only validates the list.
func ParsePeers(input string) error {
	_, err := ParsePeerList(input)
	return err
}
