package dataType

import (
	"fmt"
	"net"
	"strings"
)

// TrieNode is a bit trie over IPv4 prefixes, used for the curated
// deny-list of scraper hosting ranges. IPv6 clients fall through to
// the dynamic per-client blocklist.
type TrieNode struct {
	children [2]*TrieNode
	isEnd    bool
}

// Insert adds a network to the trie.
func (node *TrieNode) Insert(ipNet *net.IPNet) {
	ones, _ := ipNet.Mask.Size()
	ip := ipNet.IP.To4()
	if ip == nil {
		return
	}
	current := node
	for i := 0; i < ones; i++ {
		bit := (ip[i/8] >> (7 - uint(i%8))) & 1
		if current.children[bit] == nil {
			current.children[bit] = &TrieNode{}
		}
		current = current.children[bit]
	}
	current.isEnd = true
}

// InsertString accepts either a bare address or CIDR notation.
func (node *TrieNode) InsertString(rule string) error {
	rule = strings.TrimSpace(rule)
	if !strings.Contains(rule, "/") {
		rule += "/32"
	}
	_, ipNet, err := net.ParseCIDR(rule)
	if err != nil {
		return fmt.Errorf("invalid address rule %q: %w", rule, err)
	}
	node.Insert(ipNet)
	return nil
}

// Search reports whether the ip falls inside any inserted prefix.
func (node *TrieNode) Search(ip net.IP) bool {
	ip = ip.To4()
	if ip == nil {
		return false
	}
	current := node
	for i := 0; i < 32; i++ {
		if current.isEnd {
			return true
		}
		bit := (ip[i/8] >> (7 - uint(i%8))) & 1
		if current.children[bit] == nil {
			return false
		}
		current = current.children[bit]
	}
	return current.isEnd
}

// SearchString parses and searches; unparsable input never matches.
func (node *TrieNode) SearchString(addr string) bool {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return false
	}
	return node.Search(ip)
}
