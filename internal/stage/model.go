package stage

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/banshee-data/stagescan/internal/monitoring"
)

const (
	// DefaultHomingDistance exceeds the full travel of either axis, so a move
	// of this size always ends against an endstop.
	DefaultHomingDistance = 60.0

	// DefaultIdentity is the *IDN? reply of the supported controller.
	DefaultIdentity = "MELLES GRIOT NANOSTEP"

	// DefaultIdentityAttempts allows for the spurious replies the controller
	// produces right after the port is opened.
	DefaultIdentityAttempts = 5

	// moveEpsilon is the smallest relative move that is sent to the controller.
	moveEpsilon = 1e-9
)

// Options configures a Model.
type Options struct {
	// HomingDistance is the magnitude of the uncalibrated move used to reach
	// an endstop. Zero selects DefaultHomingDistance.
	HomingDistance float64

	// Identity is the expected *IDN? response. Empty disables the check.
	Identity string

	// IdentityAttempts bounds the *IDN? retries on connect. Zero selects
	// DefaultIdentityAttempts.
	IdentityAttempts int
}

// DefaultOptions returns the options for the supported controller.
func DefaultOptions() Options {
	return Options{
		HomingDistance:   DefaultHomingDistance,
		Identity:         DefaultIdentity,
		IdentityAttempts: DefaultIdentityAttempts,
	}
}

// Model is the single source of truth for stage position. It is safe for
// concurrent use, but concurrent moves interleave at command granularity, so
// callers that need a consistent sequence of moves must serialise them.
type Model struct {
	mu   sync.Mutex
	dial Dialer
	opts Options
	link Link

	position   [NumAxes]float64
	calibrated [NumAxes]bool

	logf func(format string, v ...interface{})
}

// NewModel returns a disconnected model. Connect must be called before any
// command is sent.
func NewModel(dial Dialer, opts Options) *Model {
	if opts.HomingDistance <= 0 {
		opts.HomingDistance = DefaultHomingDistance
	}
	if opts.IdentityAttempts <= 0 {
		opts.IdentityAttempts = DefaultIdentityAttempts
	}
	return &Model{
		dial: dial,
		opts: opts,
		logf: monitoring.Prefixed("stage"),
	}
}

// Connect opens the link and verifies the controller identity. It is a no-op
// when already connected.
func (m *Model) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link != nil {
		return nil
	}
	return m.connectLocked()
}

// Reconnect drops any existing link and opens a new one. Calibration is not
// restored: every axis must be homed again afterwards.
func (m *Model) Reconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLinkLocked()
	return m.connectLocked()
}

func (m *Model) connectLocked() error {
	if m.dial == nil {
		return fmt.Errorf("%w: no dialer configured", ErrNotConnected)
	}
	link, err := m.dial()
	if err != nil {
		return fmt.Errorf("failed to open stage controller: %w", err)
	}
	m.link = link
	m.invalidateLocked()

	if err := m.identifyLocked(); err != nil {
		m.dropLinkLocked()
		return err
	}
	m.logf("connected to stage controller")
	return nil
}

// Identify queries *IDN? until the expected identity is returned or the
// attempts are exhausted.
func (m *Model) Identify() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identifyLocked()
}

func (m *Model) identifyLocked() error {
	if m.opts.Identity == "" {
		return nil
	}
	var received string
	for i := 0; i < m.opts.IdentityAttempts; i++ {
		resp, err := m.sendLocked(identityCommand)
		if err != nil {
			if errors.Is(err, ErrInvalidCommand) {
				continue
			}
			return err
		}
		received = resp
		if resp == m.opts.Identity {
			return nil
		}
	}
	return fmt.Errorf("%w: expected %q, received %q", ErrIdentityMismatch, m.opts.Identity, received)
}

// Connected reports whether the model holds a usable link.
func (m *Model) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link != nil
}

// Close releases the instrument handle.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.link == nil {
		return nil
	}
	err := m.link.Close()
	m.link = nil
	m.invalidateLocked()
	return err
}

// MoveRelative moves axis by distance and adds it to the tracked position.
// A connection fault drops the handle and invalidates every axis.
func (m *Model) MoveRelative(axis Axis, distance float64) error {
	if !axis.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveLocked(axis, distance, true)
}

func (m *Model) moveLocked(axis Axis, distance float64, track bool) error {
	if math.Abs(distance) < moveEpsilon {
		return nil
	}
	if _, err := m.sendLocked(moveCommand(axis, distance)); err != nil {
		return fmt.Errorf("move %s by %s: %w", axis, formatDistance(distance), err)
	}
	if track {
		m.position[axis] += distance
	}
	return nil
}

// MoveAbsolute moves axis to target relative to the homed origin.
func (m *Model) MoveAbsolute(axis Axis, target float64) error {
	if !axis.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.calibrated[axis] {
		return fmt.Errorf("move %s to %g: %w", axis, target, ErrNotCalibrated)
	}
	return m.moveLocked(axis, target-m.position[axis], true)
}

// Home drives axis past its full travel towards the endstop selected by the
// sign of direction, checks that the matching endstop is engaged and sets the
// tracked position to zero.
func (m *Model) Home(axis Axis, direction int) error {
	if !axis.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}
	if direction == 0 {
		return ErrInvalidDirection
	}
	sign := 1
	if direction < 0 {
		sign = -1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calibrated[axis] = false
	if err := m.moveLocked(axis, float64(sign)*m.opts.HomingDistance, false); err != nil {
		return fmt.Errorf("home %s: %w", axis, err)
	}
	reached, err := m.endstopLocked(axis)
	if err != nil {
		return fmt.Errorf("home %s: %w", axis, err)
	}
	if reached != sign {
		return fmt.Errorf("home %s: %w (commanded %+d, endstop %+d)", axis, ErrHomingFailed, sign, reached)
	}

	m.position[axis] = 0
	m.calibrated[axis] = true
	m.logf("homed %s axis at %+d endstop", axis, sign)
	return nil
}

// Endstop reports which endstop of axis is engaged: -1 minimum, +1 maximum,
// 0 neither.
func (m *Model) Endstop(axis Axis) (int, error) {
	if !axis.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAxis, int(axis))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endstopLocked(axis)
}

func (m *Model) endstopLocked(axis Axis) (int, error) {
	resp, err := m.sendLocked(endstopCommand(axis))
	if err != nil {
		return 0, err
	}
	v, err := ParseEndstop(resp)
	if errors.Is(err, ErrInconsistentEndstop) {
		m.logf("both endstops reported on %s axis, dropping controller handle", axis)
		m.dropLinkLocked()
	}
	return v, err
}

// Position returns the tracked position of axis and whether it is valid.
func (m *Model) Position(axis Axis) (float64, bool) {
	if !axis.Valid() {
		return 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position[axis], m.calibrated[axis]
}

// Calibrated reports whether axis has been homed since the last fault.
func (m *Model) Calibrated(axis Axis) bool {
	_, ok := m.Position(axis)
	return ok
}

func (m *Model) sendLocked(command string) (string, error) {
	if m.link == nil {
		return "", ErrNotConnected
	}
	resp, err := m.link.SendCommand(command)
	if err != nil && errors.Is(err, ErrConnectionFault) {
		m.logf("connection fault on %q: %v", command, err)
		m.dropLinkLocked()
	}
	return resp, err
}

// dropLinkLocked closes and forgets the link; position tracking is no longer
// trustworthy once the controller may have moved without acknowledgement.
func (m *Model) dropLinkLocked() {
	if m.link != nil {
		if err := m.link.Close(); err != nil {
			m.logf("error closing stage link: %v", err)
		}
		m.link = nil
	}
	m.invalidateLocked()
}

func (m *Model) invalidateLocked() {
	for i := range m.calibrated {
		m.calibrated[i] = false
	}
}

func formatDistance(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}
