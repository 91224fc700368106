// Package shell is the "shell" user program itself: a trivial read-eval
// loop that runs under a base-shell PCB (§4.6 lazy boot, §5 base-shell
// immortality). It is registered as a syscall.ProgramFunc the same way any
// other executable on the filesystem image would be, the closure standing
// in for the ring-3 entry point a loader would have jumped to.
package shell

import (
	"strings"

	"github.com/kernellab/pmk/internal/process"
	"github.com/kernellab/pmk/internal/syscall"
)

// Prompt is written to stdout before each read.
const Prompt = "$ "

// Run reads command lines from fd 0 and runs each one via execute(),
// exactly the way a real shell's main loop would, until the user types
// "exit" (which halts this base shell; the dispatcher immediately
// relaunches a fresh one in the same terminal slot).
func Run(d *syscall.Dispatcher, pcb *process.PCB, args string) int {
	buf := make([]byte, process.ArgBufferSize)
	for {
		d.Write(pcb, 1, []byte(Prompt))

		n, err := d.Read(pcb, 0, buf)
		if err != nil {
			return 1
		}
		line := strings.TrimRight(string(buf[:n]), "\n")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			d.Halt(0)
		}

		status, err := d.Execute(pcb.Pid, line)
		if err != nil {
			d.Write(pcb, 1, []byte(err.Error()+"\n"))
			continue
		}
		_ = status
	}
}
