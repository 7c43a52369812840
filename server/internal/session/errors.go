package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotCalibrated is returned by Run when calibration has not completed.
	ErrNotCalibrated = errors.New("calibration has not completed")
	// ErrNotReady is returned by Begin before a successful Setup.
	ErrNotReady = errors.New("session is not set up")
	// ErrAlreadyStarted is returned when Setup or Run is repeated.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrCalibrationAbandoned ends a session replaced after its calibration
	// failed.
	ErrCalibrationAbandoned = errors.New("calibration failed and the session was replaced")
	// ErrStationBusy is returned when a session is opened while another runs.
	ErrStationBusy = errors.New("another session is in progress")
)

// SetupError reports why a session could not start. The session can be set
// up again after fixing the cause.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("session setup (%s): %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// PersistenceError reports a record that was assembled but not stored. The
// record is still available from the controller.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("saving session record: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
