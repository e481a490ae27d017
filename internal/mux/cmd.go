// SPDX-License-Identifier: MIT

package mux

import (
	"context"
	"os/exec"
)

// newCommand builds the ffmpeg child-process command. Grounded on the
// teacher's exec.CommandContext usage: the command is bound to ctx so
// that a cancelled mux (e.g. application shutdown mid-finalize) tears
// the child process down instead of leaking it.
func newCommand(ctx context.Context, bin string, args []string) *exec.Cmd {
	return exec.CommandContext(ctx, bin, args...)
}
