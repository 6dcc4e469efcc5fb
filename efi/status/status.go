// Package status holds the EFI_STATUS codes returned by boot and runtime
// services.
package status

import (
	"fmt"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Appendix D - Status Codes
type Status uint64

const errorBit Status = 1 << 63

const (
	SUCCESS            Status = 0
	LOAD_ERROR         Status = errorBit | 1
	INVALID_PARAMETER  Status = errorBit | 2
	UNSUPPORTED        Status = errorBit | 3
	BAD_BUFFER_SIZE    Status = errorBit | 4
	BUFFER_TOO_SMALL   Status = errorBit | 5
	NOT_READY          Status = errorBit | 6
	DEVICE_ERROR       Status = errorBit | 7
	WRITE_PROTECTED    Status = errorBit | 8
	OUT_OF_RESOURCES   Status = errorBit | 9
	NOT_FOUND          Status = errorBit | 14
	ACCESS_DENIED      Status = errorBit | 15
	ABORTED            Status = errorBit | 21
	SECURITY_VIOLATION Status = errorBit | 26
)

var names = map[Status]string{
	SUCCESS:            "EFI_SUCCESS",
	LOAD_ERROR:         "EFI_LOAD_ERROR",
	INVALID_PARAMETER:  "EFI_INVALID_PARAMETER",
	UNSUPPORTED:        "EFI_UNSUPPORTED",
	BAD_BUFFER_SIZE:    "EFI_BAD_BUFFER_SIZE",
	BUFFER_TOO_SMALL:   "EFI_BUFFER_TOO_SMALL",
	NOT_READY:          "EFI_NOT_READY",
	DEVICE_ERROR:       "EFI_DEVICE_ERROR",
	WRITE_PROTECTED:    "EFI_WRITE_PROTECTED",
	OUT_OF_RESOURCES:   "EFI_OUT_OF_RESOURCES",
	NOT_FOUND:          "EFI_NOT_FOUND",
	ACCESS_DENIED:      "EFI_ACCESS_DENIED",
	ABORTED:            "EFI_ABORTED",
	SECURITY_VIOLATION: "EFI_SECURITY_VIOLATION",
}

func (s Status) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	if s.IsError() {
		return fmt.Sprintf("EFI_STATUS(error %d)", uint64(s&^errorBit))
	}
	return fmt.Sprintf("EFI_STATUS(%#x)", uint64(s))
}

func (s Status) Error() string {
	return s.String()
}

func (s Status) IsError() bool {
	return s&errorBit != 0
}

// Of extracts the status carried by err. A nil error is SUCCESS, errors
// without a status are reported as DEVICE_ERROR.
func Of(err error) Status {
	if err == nil {
		return SUCCESS
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return FromErrno(errno)
	}
	return DEVICE_ERROR
}

// FromErrno maps the errno efivarfs returns for a failed SetVariable back to
// the status the firmware reported.
func FromErrno(errno syscall.Errno) Status {
	switch errno {
	case 0:
		return SUCCESS
	case unix.EACCES, unix.EPERM:
		return SECURITY_VIOLATION
	case unix.EINVAL:
		return INVALID_PARAMETER
	case unix.ENOENT:
		return NOT_FOUND
	case unix.ENOSPC:
		return OUT_OF_RESOURCES
	case unix.EROFS:
		return WRITE_PROTECTED
	case unix.EINTR:
		return ABORTED
	case unix.ENOSYS, unix.EOPNOTSUPP:
		return UNSUPPORTED
	case unix.EBUSY:
		return NOT_READY
	default:
		return DEVICE_ERROR
	}
}
