// The serr package defines the error codes returned by devices and
// the registration layer, and how they map onto unix errnos.
package serr

import (
	"errors"
	"fmt"
	"syscall"
)

type Terror uint32

const (
	TErrNoError Terror = iota
	TErrIntr
	TErrClosed
	TErrNotfound
	TErrExists
	TErrUnknownHandle
	TErrInval
	TErrNotSupported
	TErrError
)

func (err Terror) String() string {
	switch err {
	case TErrNoError:
		return "no error"
	case TErrIntr:
		return "interrupted"
	case TErrClosed:
		return "closed"
	case TErrNotfound:
		return "file not found"
	case TErrExists:
		return "exists"
	case TErrUnknownHandle:
		return "unknown handle"
	case TErrInval:
		return "invalid argument"
	case TErrNotSupported:
		return "operation not supported"
	case TErrError:
		return "error"
	default:
		return fmt.Sprintf("unknown error %d", uint32(err))
	}
}

type Err struct {
	ErrCode Terror
	Obj     string
	Err     error
}

func NewErr(code Terror, obj interface{}) *Err {
	return &Err{
		ErrCode: code,
		Obj:     fmt.Sprintf("%v", obj),
	}
}

func NewErrError(error error) *Err {
	var err *Err
	if errors.As(error, &err) {
		return err
	}
	return &Err{
		ErrCode: TErrError,
		Err:     error,
	}
}

func (err *Err) Code() Terror {
	return err.ErrCode
}

func (err *Err) Unwrap() error {
	return err.Err
}

func (err *Err) Error() string {
	s := err.ErrCode.String()
	if err.Obj != "" {
		s = fmt.Sprintf("{Err: %q Obj: %q", s, err.Obj)
	} else {
		s = fmt.Sprintf("{Err: %q", s)
	}
	if err.Err != nil {
		s += fmt.Sprintf(" (%v)", err.Err)
	}
	return s + "}"
}

func (err *Err) String() string {
	return err.Error()
}

func (err *Err) IsErrIntr() bool {
	return err.ErrCode == TErrIntr
}

func IsErrCode(error error, code Terror) bool {
	var err *Err
	if errors.As(error, &err) {
		return err.Code() == code
	}
	return false
}

func IsErrIntr(error error) bool {
	return IsErrCode(error, TErrIntr)
}

// ToErrno maps err to the errno a host kernel hands back to a
// caller of read(2)/write(2).  A nil err maps to 0.
func ToErrno(err *Err) syscall.Errno {
	if err == nil {
		return 0
	}
	switch err.ErrCode {
	case TErrNoError:
		return 0
	case TErrIntr:
		return syscall.EINTR
	case TErrClosed:
		return syscall.ENODEV
	case TErrNotfound:
		return syscall.ENOENT
	case TErrExists:
		return syscall.EEXIST
	case TErrUnknownHandle:
		return syscall.EBADF
	case TErrInval:
		return syscall.EINVAL
	case TErrNotSupported:
		return syscall.ENOTSUP
	default:
		return syscall.EIO
	}
}
