package rig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/stagescan/internal/config"
	"github.com/banshee-data/stagescan/internal/monitoring"
	"github.com/banshee-data/stagescan/internal/stage"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestOpen_Dev(t *testing.T) {
	r, err := Open(config.EmptyScanConfig(), Options{Dev: true, Seed: 1})
	require.NoError(t, err)
	defer r.Close()

	require.NotNil(t, r.SimStage)
	assert.True(t, r.Model.Connected())

	cfg := config.EmptyScanConfig()
	for _, axis := range []stage.Axis{stage.X, stage.Y} {
		require.NoError(t, r.Model.Home(axis, cfg.GetHomingDirection()))
	}
	require.NoError(t, r.Model.MoveAbsolute(stage.X, 25))
	require.NoError(t, r.Model.MoveAbsolute(stage.Y, 25))
	assert.InDelta(t, 25, r.SimStage.Position(stage.X), 1e-9)

	v, err := r.Sampler.ReadOne()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 0.1, "sampler should read the spot peak at the centre")

	require.NoError(t, r.Close())
	assert.False(t, r.Model.Connected())
	// A second close is harmless.
	assert.NoError(t, r.Close())
}

func TestOpen_DevCustomIdentity(t *testing.T) {
	cfg, err := config.LoadScanConfig(writeIdentityConfig(t))
	require.NoError(t, err)
	r, err := Open(cfg, Options{Dev: true})
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "BENCH STAGE", r.SimStage.Identity)
}

func TestOpen_RequiresPorts(t *testing.T) {
	_, err := Open(config.EmptyScanConfig(), Options{StagePort: "/dev/null"})
	assert.Error(t, err)
}

func TestOpen_MissingSerialDevice(t *testing.T) {
	_, err := Open(config.EmptyScanConfig(), Options{
		StagePort:   "/dev/stagescan-missing-stage",
		SamplerPort: "/dev/stagescan-missing-sampler",
	})
	assert.Error(t, err)
}

func TestOpenSampler_Dev(t *testing.T) {
	r, err := OpenSampler(config.EmptyScanConfig(), Options{Dev: true, Seed: 3})
	require.NoError(t, err)
	defer r.Close()
	assert.Nil(t, r.Model)

	// The carriage starts mid-travel, on the spot centre.
	v, err := r.Sampler.ReadOne()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 0.1)
}

func TestOpenSampler_RequiresPort(t *testing.T) {
	_, err := OpenSampler(config.EmptyScanConfig(), Options{})
	assert.Error(t, err)
}

func TestOpenStage_Dev(t *testing.T) {
	r, err := OpenStage(config.EmptyScanConfig(), Options{Dev: true})
	require.NoError(t, err)
	defer r.Close()
	assert.Nil(t, r.Sampler)
	require.NotNil(t, r.SimStage)
	assert.True(t, r.Model.Connected())
}

func TestOpenStage_RequiresPort(t *testing.T) {
	_, err := OpenStage(config.EmptyScanConfig(), Options{})
	assert.Error(t, err)
}
