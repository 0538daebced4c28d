//go:build linux

package samtools

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr asks the kernel to SIGKILL the child if this process dies,
// so abandoned pipelines do not outlive a crashed run.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
