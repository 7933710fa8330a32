//go:build !linux
// +build !linux

package task

import (
	"os"
	"path/filepath"
)

func Current() *Task {
	return NewTask(os.Getpid(), NoPid, filepath.Base(os.Args[0]))
}
