package stage

import (
	"errors"

	"github.com/banshee-data/stagescan/internal/serialport"
)

var (
	// ErrConnectionFault is the transport-level timeout/disconnect signal. It
	// is the same value the serial transport returns so callers can match
	// either with errors.Is.
	ErrConnectionFault = serialport.ErrConnectionFault

	// ErrNotConnected is returned after the instrument handle has been
	// invalidated; Reconnect must be called before the port is used again.
	ErrNotConnected = errors.New("stage controller not connected")

	// ErrInvalidCommand is returned when the controller answers "E".
	ErrInvalidCommand = errors.New("controller rejected command")

	ErrNotCalibrated       = errors.New("axis not calibrated")
	ErrHomingFailed        = errors.New("homing failed: endstop does not match commanded direction")
	ErrInconsistentEndstop = errors.New("both endstops triggered")
	ErrMalformedResponse   = errors.New("malformed controller response")
	ErrInvalidDirection    = errors.New("homing direction must be non-zero")
	ErrInvalidAxis         = errors.New("invalid axis")
	ErrIdentityMismatch    = errors.New("unexpected controller identity")
)
