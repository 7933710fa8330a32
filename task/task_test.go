package task_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"complgate/task"
)

func TestCurrent(t *testing.T) {
	tk := task.Current()
	assert.Equal(t, os.Getpid(), tk.Pid)
	assert.NotEmpty(t, tk.Comm)
	assert.Contains(t, tk.String(), tk.Comm)
}

func TestFromPid(t *testing.T) {
	tk := task.FromPid(os.Getpid())
	assert.Equal(t, os.Getpid(), tk.Pid)
	assert.NotEqual(t, "", tk.Comm)
}

func TestNil(t *testing.T) {
	var tk *task.Task
	assert.Equal(t, "?(?)", tk.String())
	assert.Equal(t, task.NoPid, task.Unknown().Pid)
}
