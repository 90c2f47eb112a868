package stage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stagescan/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func connectedModel(t *testing.T) (*Model, *ScriptedLink) {
	t.Helper()
	link := NewScriptedLink()
	m := NewModel(link.Dialer(), DefaultOptions())
	require.NoError(t, m.Connect())
	link.Reset()
	return m, link
}

func homedModel(t *testing.T) (*Model, *ScriptedLink) {
	t.Helper()
	m, link := connectedModel(t)
	require.NoError(t, m.Home(X, -1))
	require.NoError(t, m.Home(Y, -1))
	link.Reset()
	return m, link
}

func TestModel_ConnectIdentifies(t *testing.T) {
	link := NewScriptedLink()
	m := NewModel(link.Dialer(), DefaultOptions())
	require.NoError(t, m.Connect())
	assert.True(t, m.Connected())
	assert.Equal(t, []string{"*IDN?"}, link.Commands())

	// Already connected: no further traffic.
	require.NoError(t, m.Connect())
	assert.Len(t, link.Commands(), 1)
}

func TestModel_ConnectRetriesIdentity(t *testing.T) {
	link := NewScriptedLink()
	attempts := 0
	link.BeforeSend = func(cmd string) error {
		if cmd != "*IDN?" {
			return nil
		}
		attempts++
		if attempts < 3 {
			return fmt.Errorf("%w: garbage", ErrInvalidCommand)
		}
		return nil
	}
	m := NewModel(link.Dialer(), DefaultOptions())
	require.NoError(t, m.Connect())
	assert.Equal(t, 3, attempts)
}

func TestModel_ConnectIdentityMismatch(t *testing.T) {
	link := NewScriptedLink()
	link.Identity = "SOMETHING ELSE"
	m := NewModel(link.Dialer(), Options{Identity: DefaultIdentity, IdentityAttempts: 2})
	err := m.Connect()
	require.ErrorIs(t, err, ErrIdentityMismatch)
	assert.False(t, m.Connected())
	assert.Len(t, link.Commands(), 2)
	assert.Equal(t, 1, link.Closes())
}

func TestModel_ConnectDialError(t *testing.T) {
	dialErr := errors.New("no such port")
	m := NewModel(func() (Link, error) { return nil, dialErr }, DefaultOptions())
	err := m.Connect()
	require.ErrorIs(t, err, dialErr)
	assert.False(t, m.Connected())
}

func TestModel_NoDialer(t *testing.T) {
	m := NewModel(nil, DefaultOptions())
	require.ErrorIs(t, m.Connect(), ErrNotConnected)
}

func TestModel_NotConnected(t *testing.T) {
	link := NewScriptedLink()
	m := NewModel(link.Dialer(), DefaultOptions())

	require.ErrorIs(t, m.MoveRelative(X, 1), ErrNotConnected)
	require.ErrorIs(t, m.Home(X, -1), ErrNotConnected)
	_, err := m.Endstop(Y)
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, link.Commands())
}

func TestModel_HomeMinimum(t *testing.T) {
	m, link := connectedModel(t)

	require.NoError(t, m.Home(X, -1))

	assert.Equal(t, []string{"MR0=-60", "?L0"}, link.Commands())
	pos, ok := m.Position(X)
	assert.True(t, ok)
	assert.Equal(t, 0.0, pos)
	assert.False(t, m.Calibrated(Y))
}

func TestModel_HomeMaximum(t *testing.T) {
	m, link := connectedModel(t)

	require.NoError(t, m.Home(Y, 7))

	assert.Equal(t, []string{"MR1=60", "?L1"}, link.Commands())
	assert.True(t, m.Calibrated(Y))
}

func TestModel_HomeCustomDistance(t *testing.T) {
	link := NewScriptedLink()
	m := NewModel(link.Dialer(), Options{HomingDistance: 12.5})
	require.NoError(t, m.Connect())

	require.NoError(t, m.Home(X, -1))
	assert.Equal(t, []string{"MR0=-12.5"}, link.Moves())
}

func TestModel_HomeZeroDirection(t *testing.T) {
	m, link := connectedModel(t)
	require.ErrorIs(t, m.Home(X, 0), ErrInvalidDirection)
	assert.Empty(t, link.Commands())
}

func TestModel_HomeInvalidAxis(t *testing.T) {
	m, _ := connectedModel(t)
	require.ErrorIs(t, m.Home(Axis(2), -1), ErrInvalidAxis)
}

func TestModel_HomeEndstopMismatch(t *testing.T) {
	tests := []struct {
		name      string
		direction int
		status    string
	}{
		{"commanded min, at max", -1, "10"},
		{"commanded min, at neither", -1, "00"},
		{"commanded max, at min", 1, "01"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, link := connectedModel(t)
			link.Responses["?L0"] = tc.status

			err := m.Home(X, tc.direction)
			require.ErrorIs(t, err, ErrHomingFailed)
			assert.False(t, m.Calibrated(X))
			assert.True(t, m.Connected())
		})
	}
}

func TestModel_HomeInconsistentEndstopDropsHandle(t *testing.T) {
	m, link := homedModel(t)
	link.Responses["?L1"] = "11"

	err := m.Home(Y, -1)
	require.ErrorIs(t, err, ErrInconsistentEndstop)
	assert.False(t, m.Connected())
	assert.False(t, m.Calibrated(X))
	assert.False(t, m.Calibrated(Y))

	require.ErrorIs(t, m.MoveRelative(X, 1), ErrNotConnected)
}

func TestModel_HomeMalformedEndstop(t *testing.T) {
	m, link := connectedModel(t)
	link.Responses["?L0"] = "1"

	require.ErrorIs(t, m.Home(X, -1), ErrMalformedResponse)
	assert.False(t, m.Calibrated(X))
}

func TestModel_RehomeClearsCalibrationFirst(t *testing.T) {
	m, link := homedModel(t)
	link.Responses["?L0"] = "00"

	require.ErrorIs(t, m.Home(X, -1), ErrHomingFailed)
	assert.False(t, m.Calibrated(X))
	assert.True(t, m.Calibrated(Y))
}

func TestModel_MoveRelativeTracksPosition(t *testing.T) {
	m, link := homedModel(t)

	require.NoError(t, m.MoveRelative(X, 2.5))
	require.NoError(t, m.MoveRelative(X, -0.5))
	require.NoError(t, m.MoveRelative(Y, 1))

	x, _ := m.Position(X)
	y, _ := m.Position(Y)
	assert.InDelta(t, 2.0, x, 1e-12)
	assert.InDelta(t, 1.0, y, 1e-12)

	want := []string{"MR0=2.5", "MR0=-0.5", "MR1=1"}
	if diff := cmp.Diff(want, link.Commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestModel_MoveRelativeZeroSendsNothing(t *testing.T) {
	m, link := homedModel(t)

	require.NoError(t, m.MoveRelative(X, 0))
	require.NoError(t, m.MoveRelative(Y, 1e-12))
	assert.Empty(t, link.Commands())
}

func TestModel_MoveRelativeUncalibratedStillMoves(t *testing.T) {
	m, link := connectedModel(t)

	require.NoError(t, m.MoveRelative(X, 3))
	assert.Equal(t, []string{"MR0=3"}, link.Commands())
	assert.False(t, m.Calibrated(X))
}

func TestModel_MoveRelativeInvalidCommand(t *testing.T) {
	m, link := homedModel(t)
	link.Responses["MR0=1"] = "E"

	err := m.MoveRelative(X, 1)
	require.ErrorIs(t, err, ErrInvalidCommand)
	pos, ok := m.Position(X)
	assert.True(t, ok)
	assert.Equal(t, 0.0, pos)
	assert.True(t, m.Connected())
}

func TestModel_FaultInvalidatesAllAxes(t *testing.T) {
	m, link := homedModel(t)
	link.BeforeSend = func(cmd string) error {
		if cmd == "MR1=1" {
			return fmt.Errorf("%w: read timeout", ErrConnectionFault)
		}
		return nil
	}

	err := m.MoveRelative(Y, 1)
	require.ErrorIs(t, err, ErrConnectionFault)
	assert.False(t, m.Connected())
	assert.False(t, m.Calibrated(X))
	assert.False(t, m.Calibrated(Y))
	assert.Equal(t, 1, link.Closes())

	// Subsequent commands never reach the port.
	link.Reset()
	require.ErrorIs(t, m.MoveRelative(X, 1), ErrNotConnected)
	assert.Empty(t, link.Commands())
}

func TestModel_ReconnectRequiresRehoming(t *testing.T) {
	m, link := homedModel(t)
	link.BeforeSend = func(string) error { return ErrConnectionFault }
	require.Error(t, m.MoveRelative(X, 1))

	link.BeforeSend = nil
	require.NoError(t, m.Reconnect())
	assert.True(t, m.Connected())
	assert.False(t, m.Calibrated(X))
	assert.False(t, m.Calibrated(Y))
	require.ErrorIs(t, m.MoveAbsolute(X, 1), ErrNotCalibrated)
}

func TestModel_MoveAbsolute(t *testing.T) {
	m, link := homedModel(t)

	require.NoError(t, m.MoveAbsolute(X, 10))
	require.NoError(t, m.MoveAbsolute(X, 4))
	require.NoError(t, m.MoveAbsolute(X, 4))

	assert.Equal(t, []string{"MR0=10", "MR0=-6"}, link.Commands())
	x, _ := m.Position(X)
	assert.InDelta(t, 4.0, x, 1e-12)
}

func TestModel_MoveAbsoluteUncalibrated(t *testing.T) {
	m, link := connectedModel(t)
	require.NoError(t, m.Home(X, -1))
	link.Reset()

	require.ErrorIs(t, m.MoveAbsolute(Y, 1), ErrNotCalibrated)
	assert.Empty(t, link.Commands())
}

func TestModel_Endstop(t *testing.T) {
	m, link := connectedModel(t)
	tests := map[string]int{"10": 1, "01": -1, "00": 0}
	for status, want := range tests {
		link.Responses["?L1"] = status
		got, err := m.Endstop(Y)
		require.NoError(t, err, status)
		assert.Equal(t, want, got, status)
	}
}

func TestModel_Close(t *testing.T) {
	m, link := homedModel(t)
	require.NoError(t, m.Close())
	assert.False(t, m.Connected())
	assert.False(t, m.Calibrated(X))
	assert.Equal(t, 1, link.Closes())
	require.NoError(t, m.Close())
}

func TestModel_PositionInvalidAxis(t *testing.T) {
	m, _ := homedModel(t)
	_, ok := m.Position(Axis(-1))
	assert.False(t, ok)
}

func TestModel_DefaultsApplied(t *testing.T) {
	m := NewModel(nil, Options{})
	assert.Equal(t, DefaultHomingDistance, m.opts.HomingDistance)
	assert.Equal(t, DefaultIdentityAttempts, m.opts.IdentityAttempts)
}
