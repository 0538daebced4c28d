//go:build !linux

package samtools

import "os/exec"

func setSysProcAttr(*exec.Cmd) {}
