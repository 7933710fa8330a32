// The task package answers "who is calling": the pid and command name
// of the current goroutine's thread or of a remote caller.  It is used
// only to label diagnostics.
package task

import (
	"fmt"

	"github.com/shirou/gopsutil/process"

	db "complgate/debug"
)

const NoPid = -1

type Task struct {
	Pid  int
	Tid  int
	Comm string
}

func NewTask(pid, tid int, comm string) *Task {
	return &Task{Pid: pid, Tid: tid, Comm: comm}
}

// Unknown is the task used when the caller cannot be identified.
func Unknown() *Task {
	return NewTask(NoPid, NoPid, "?")
}

// FromPid looks up the command name of another process, for example
// the process behind a FUSE request.
func FromPid(pid int) *Task {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		db.DPrintf(db.TASK, "NewProcess %d err %v", pid, err)
		return NewTask(pid, NoPid, "?")
	}
	comm, err := p.Name()
	if err != nil {
		db.DPrintf(db.TASK, "Name %d err %v", pid, err)
		comm = "?"
	}
	return NewTask(pid, NoPid, comm)
}

func (t *Task) String() string {
	if t == nil {
		return "?(?)"
	}
	return fmt.Sprintf("%d(%s)", t.Pid, t.Comm)
}
