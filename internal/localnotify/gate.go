package localnotify

import (
	"context"
	"sync/atomic"
)

// Gate is a switchable Permissions value. The zero value denies.
type Gate struct {
	granted atomic.Bool
}

func NewGate(granted bool) *Gate {
	g := &Gate{}
	g.granted.Store(granted)
	return g
}

// Set flips the permission; config reloads call it.
func (g *Gate) Set(granted bool) { g.granted.Store(granted) }

func (g *Gate) Granted(context.Context) (bool, error) { return g.granted.Load(), nil }

// ParsePermission maps config values to a bool. Anything but "denied" grants.
func ParsePermission(s string) bool {
	switch s {
	case "denied", "deny", "off", "false":
		return false
	}
	return true
}
