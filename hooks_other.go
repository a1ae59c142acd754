//go:build !illumos

package taskrt

import "github.com/Swind/taskrt/core"

// Tracing probes are only wired on illumos.
func registerPlatformHooks(*core.Builder) error { return nil }
