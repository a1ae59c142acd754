//go:build illumos

package taskrt

import (
	"github.com/Swind/taskrt/core"
	"github.com/Swind/taskrt/probes"
)

// registerPlatformHooks attaches the DTrace-style tracing probes. Failure is
// fatal to Build: a platform that supports the probes must have them.
func registerPlatformHooks(b *core.Builder) error {
	return probes.Register(b)
}
