package common

import (
	"fmt"
	"strings"
)

// Chain identifies the blockchain an event or call row belongs to.
type Chain string

const (
	ChainBase    Chain = "BASE"
	ChainStellar Chain = "STELLAR"
)

// AllChains lists the supported chains in a stable order.
var AllChains = []Chain{ChainBase, ChainStellar}

func (c Chain) String() string {
	return string(c)
}

// IsValid reports whether c is a supported chain.
func (c Chain) IsValid() bool {
	switch c {
	case ChainBase, ChainStellar:
		return true
	default:
		return false
	}
}

// ParseChain parses a chain name case-insensitively ("base", "STELLAR", ...).
func ParseChain(s string) (Chain, error) {
	c := Chain(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid chain: %q (must be one of: base, stellar)", s)
	}
	return c, nil
}
