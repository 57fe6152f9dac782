package preload

import (
	"strings"
	"sync/atomic"
)

// NetworkInfo reports the effective connection type of the client, using the
// values of the ECT client hint: slow-2g, 2g, 3g, 4g.
type NetworkInfo interface {
	EffectiveType() string
}

// EffectiveType is a fixed NetworkInfo.
type EffectiveType string

func (e EffectiveType) EffectiveType() string {
	return string(e)
}

// NetworkState is a NetworkInfo updated from the latest client hint seen.
type NetworkState struct {
	ect atomic.Value
}

func (n *NetworkState) Set(ect string) {
	n.ect.Store(strings.ToLower(strings.TrimSpace(ect)))
}

func (n *NetworkState) EffectiveType() string {
	if v, ok := n.ect.Load().(string); ok {
		return v
	}
	return ""
}

// IsSlow reports whether network describes a connection too slow to preload on.
func IsSlow(network NetworkInfo) bool {
	if network == nil {
		return false
	}
	switch strings.ToLower(network.EffectiveType()) {
	case "2g", "slow-2g":
		return true
	}
	return false
}
