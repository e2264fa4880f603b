// Package media captures the candidate's camera for the local
// self-preview. Frames are JPEG-encoded and pushed to the UI; nothing
// here ever leaves the machine.
package media

import (
	"errors"
	"fmt"
	"strings"
)

// PermissionClass categorizes camera open failures for user-facing
// messaging.
type PermissionClass int

const (
	PermissionUnknown PermissionClass = iota
	PermissionDenied
	DeviceNotFound
	DeviceInUse
)

// String returns a human-readable class name.
func (c PermissionClass) String() string {
	switch c {
	case PermissionDenied:
		return "denied"
	case DeviceNotFound:
		return "not_found"
	case DeviceInUse:
		return "in_use"
	default:
		return "unknown"
	}
}

// Message returns the guidance shown to the candidate for this class.
func (c PermissionClass) Message() string {
	switch c {
	case PermissionDenied:
		return "Camera access was denied. Check your system privacy settings and try again."
	case DeviceNotFound:
		return "No camera was found. Connect a camera and try again."
	case DeviceInUse:
		return "The camera is in use by another application. Close it and try again."
	default:
		return "The camera could not be started."
	}
}

// CaptureError pairs a camera failure with its classification.
type CaptureError struct {
	Class PermissionClass
	Err   error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("media [%s]: %v", e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// ErrCameraClosed is returned when reading from a closed source.
var ErrCameraClosed = errors.New("media: camera closed")

// ClassifyCaptureError maps a device open failure to a permission class.
func ClassifyCaptureError(err error) PermissionClass {
	if err == nil {
		return PermissionUnknown
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "not authorized"),
		strings.Contains(msg, "not permitted"),
		strings.Contains(msg, "access denied"):
		return PermissionDenied
	case strings.Contains(msg, "no such file"),
		strings.Contains(msg, "no such device"),
		strings.Contains(msg, "cannot find"),
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "no camera"):
		return DeviceNotFound
	case strings.Contains(msg, "busy"),
		strings.Contains(msg, "in use"),
		strings.Contains(msg, "already"):
		return DeviceInUse
	default:
		return PermissionUnknown
	}
}

// Source produces JPEG frames from a camera.
type Source interface {
	// ReadJPEG grabs one frame as JPEG bytes.
	ReadJPEG() ([]byte, error)

	// Close releases the device. Mandatory; a leaked handle keeps the
	// camera light on after the session ends.
	Close() error
}
