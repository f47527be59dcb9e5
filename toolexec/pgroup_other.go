// +build !linux,!darwin,!freebsd,!netbsd,!openbsd

package toolexec

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill() // nolint: errcheck
	}
}
