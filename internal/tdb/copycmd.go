package tdb

import (
	"os/exec"
	"strconv"
	"time"

	"github.com/dreamware/tdbkit/internal/tdberr"
)

// runCopyCommand implements the copy-by-command escape (spec.md §6.6):
// program is executed directly (no shell) with the handle's current path
// and a microsecond timestamp as its two arguments.
func runCopyCommand(program, currentPath string) error {
	if program == "" {
		return tdberr.New(tdberr.KindInvalidArgument, "empty copy command")
	}
	ts := strconv.FormatInt(time.Now().UnixMicro(), 10)
	cmd := exec.Command(program, currentPath, ts)
	if err := cmd.Run(); err != nil {
		return tdberr.Wrap(tdberr.KindExternal, "copy command "+program, err)
	}
	return nil
}
