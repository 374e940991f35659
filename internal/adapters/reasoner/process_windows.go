//go:build windows

package reasoner

import (
	"os/exec"
	"time"
)

func configureProcAttr(cmd *exec.Cmd) {
	cmd.WaitDelay = 2 * time.Second
}
