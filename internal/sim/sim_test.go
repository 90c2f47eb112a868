package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stagescan/internal/monitoring"
	"github.com/banshee-data/stagescan/internal/stage"
	"github.com/banshee-data/stagescan/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func travel() [stage.NumAxes]stage.Limits {
	return [stage.NumAxes]stage.Limits{{Min: 0, Max: 50}, {Min: 0, Max: 50}}
}

func TestStage_Protocol(t *testing.T) {
	s := NewStage(travel())

	resp, err := s.SendCommand("*IDN?")
	require.NoError(t, err)
	assert.Equal(t, stage.DefaultIdentity, resp)

	_, err = s.SendCommand("MR0=5")
	require.NoError(t, err)
	assert.Equal(t, 30.0, s.Position(stage.X))

	resp, err = s.SendCommand("?L0")
	require.NoError(t, err)
	assert.Equal(t, "00", resp)

	_, err = s.SendCommand("MR0=-60")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Position(stage.X))
	resp, _ = s.SendCommand("?L0")
	assert.Equal(t, "01", resp)

	_, err = s.SendCommand("MR1=60")
	require.NoError(t, err)
	resp, _ = s.SendCommand("?L1")
	assert.Equal(t, "10", resp)
	assert.Equal(t, 3, s.Moves())
}

func TestStage_InvalidCommands(t *testing.T) {
	s := NewStage(travel())
	for _, cmd := range []string{"HELLO", "MR2=1", "MR0=abc", "MR0", "?L7", "?Lx"} {
		_, err := s.SendCommand(cmd)
		assert.ErrorIs(t, err, stage.ErrInvalidCommand, cmd)
	}
}

func TestStage_ClosedIsConnectionFault(t *testing.T) {
	s := NewStage(travel())
	require.NoError(t, s.Close())
	_, err := s.SendCommand("*IDN?")
	require.True(t, errors.Is(err, stage.ErrConnectionFault))

	link, err := s.Dialer()()
	require.NoError(t, err)
	_, err = link.SendCommand("*IDN?")
	require.NoError(t, err)
}

func TestStage_MoveDelayUsesClock(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	s := NewStage(travel())
	s.MoveDelay = 10 * time.Millisecond
	s.Clock = clock

	_, err := s.SendCommand("MR1=-2.5")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{25 * time.Millisecond}, clock.Sleeps())
}

func TestStage_DrivesModel(t *testing.T) {
	s := NewStage(travel())
	m := stage.NewModel(s.Dialer(), stage.DefaultOptions())
	require.NoError(t, m.Connect())
	require.NoError(t, m.Home(stage.X, -1))
	require.NoError(t, m.Home(stage.Y, 1))

	require.NoError(t, m.MoveAbsolute(stage.X, 12))
	assert.Equal(t, 12.0, s.Position(stage.X))
	assert.Equal(t, 50.0, s.Position(stage.Y))

	s.SetPosition(stage.Y, 20)
	err := m.Home(stage.Y, 1)
	require.NoError(t, err)
	assert.Equal(t, 50.0, s.Position(stage.Y))
}

func TestSampler_FollowsStage(t *testing.T) {
	s := NewStage(travel())
	spot := DefaultSpot()
	spot.Noise = 0
	smp := NewSampler(s, spot, 1)

	s.SetPosition(stage.X, 25)
	s.SetPosition(stage.Y, 25)
	centre, err := smp.ReadOne()
	require.NoError(t, err)
	assert.InDelta(t, spot.Peak+spot.Floor, centre, 1e-12)

	s.SetPosition(stage.X, 0)
	edge, err := smp.ReadOne()
	require.NoError(t, err)
	assert.Less(t, edge, centre)
	assert.InDelta(t, spot.Floor, edge, 1e-6)
}

func TestSampler_SeededNoiseIsReproducible(t *testing.T) {
	read := func() []float64 {
		s := NewStage(travel())
		smp := NewSampler(s, DefaultSpot(), 42)
		out := make([]float64, 5)
		for i := range out {
			v, err := smp.ReadOne()
			require.NoError(t, err)
			out[i] = v
		}
		return out
	}
	assert.Equal(t, read(), read())
}

func TestSpot_ZeroSigma(t *testing.T) {
	sp := Spot{Floor: 0.2}
	assert.Equal(t, 0.2, sp.Intensity(1, 2))
}
