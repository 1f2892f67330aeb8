// Package permission answers permission checks from a configured grant list.
package permission

import (
	"context"
	"strings"

	"sim-sms-bridge/internal/ports"
)

// Policy is a fixed set of granted permissions.
type Policy struct {
	granted map[ports.Permission]bool
}

// NewPolicy grants the named permissions. Names are matched case
// insensitively and may carry the "android.permission." prefix.
func NewPolicy(names []string) *Policy {
	p := &Policy{granted: make(map[ports.Permission]bool, len(names))}
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		n = strings.TrimPrefix(n, "ANDROID.PERMISSION.")
		if n == "" {
			continue
		}
		p.granted[ports.Permission(n)] = true
	}
	return p
}

func (p *Policy) Granted(_ context.Context, perm ports.Permission) bool {
	return p.granted[perm]
}

var _ ports.PermissionChecker = (*Policy)(nil)
