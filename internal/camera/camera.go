// Package camera is the device boundary of the capture flow.
//
// A Camera hands out at most one Session per device. A Session is an owned
// handle: it is released explicitly, and releasing it twice is a no-op.
// Acquisition failures wrap one of the Err* sentinels so callers can map them
// to user-facing messages with errors.Is.
package camera

import (
	"context"
	"errors"
	"image"
)

// Facing describes which way a camera points
type Facing int

const (
	FacingAny Facing = iota
	FacingEnvironment
	FacingUser
)

func (f Facing) String() string {
	switch f {
	case FacingEnvironment:
		return "environment"
	case FacingUser:
		return "user"
	default:
		return "any"
	}
}

// Constraints selects a camera. Facing is a preference unless Exact is set.
type Constraints struct {
	Facing Facing
	Exact  bool
}

// Acquisition errors, in the priority order they are detected
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNotFound         = errors.New("no camera found")
	ErrNotReadable      = errors.New("camera is in use or unreadable")
	ErrOverconstrained  = errors.New("no camera satisfies the requested facing mode")
)

// ErrSessionReleased is returned by a Session used after Release
var ErrSessionReleased = errors.New("camera session already released")

// Camera acquires sessions on a capture device
type Camera interface {
	Open(ctx context.Context, c Constraints) (Session, error)
}

// Session is a live stream on one device
type Session interface {
	// Play blocks until the stream delivers frames
	Play(ctx context.Context) error
	// Frame captures one still at the device's native resolution
	Frame(ctx context.Context) (image.Image, error)
	// Release stops the stream and frees the device
	Release() error
}
