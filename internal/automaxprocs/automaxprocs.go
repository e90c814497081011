// Package automaxprocs adjusts GOMAXPROCS to match the calling process's
// cgroup CPU quota on import. Blank-import it from a command's main
// package.
package automaxprocs

import (
	"go.uber.org/automaxprocs/maxprocs"
)

func init() {
	maxprocs.Set()
}
