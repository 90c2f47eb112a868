// Package rig assembles the stage model and sampler described by a
// ScanConfig, either on serial hardware or on the simulator.
package rig

import (
	"errors"
	"fmt"

	"github.com/banshee-data/stagescan/internal/config"
	"github.com/banshee-data/stagescan/internal/monitoring"
	"github.com/banshee-data/stagescan/internal/sampler"
	"github.com/banshee-data/stagescan/internal/serialport"
	"github.com/banshee-data/stagescan/internal/sim"
	"github.com/banshee-data/stagescan/internal/stage"
)

var logf = monitoring.Prefixed("rig")

// Options selects the hardware behind a Rig.
type Options struct {
	// Dev replaces both instruments with the simulator.
	Dev bool

	StagePort   string
	SamplerPort string

	// Seed seeds the simulated sampler noise.
	Seed int64
}

// Rig is a connected stage model and its sampler.
type Rig struct {
	Model   *stage.Model
	Sampler sampler.Sampler

	// SimStage is set in dev mode.
	SimStage *sim.Stage

	closers []func() error
}

// Open builds and connects the instruments. The stage is connected and
// identified but not homed.
func Open(cfg *config.ScanConfig, opts Options) (*Rig, error) {
	if !opts.Dev && opts.StagePort == "" {
		return nil, errors.New("stage serial port is required")
	}
	r, err := OpenSampler(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := r.connectStage(cfg, opts); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// OpenStage connects only the stage, for tools that never sample.
func OpenStage(cfg *config.ScanConfig, opts Options) (*Rig, error) {
	if !opts.Dev && opts.StagePort == "" {
		return nil, errors.New("stage serial port is required")
	}
	r := &Rig{}
	if opts.Dev {
		r.SimStage = newSimStage(cfg)
		logf("using simulated stage")
	}
	if err := r.connectStage(cfg, opts); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Rig) connectStage(cfg *config.ScanConfig, opts Options) error {
	var dial stage.Dialer
	if r.SimStage != nil {
		dial = r.SimStage.Dialer()
	} else {
		stageOpts, timeout := cfg.GetStageSerial(), cfg.GetCommandTimeout()
		dial = func() (stage.Link, error) {
			conn, err := serialport.Open(opts.StagePort, stageOpts, timeout)
			if err != nil {
				return nil, err
			}
			return stage.NewSerialLink(conn), nil
		}
	}

	r.Model = stage.NewModel(dial, cfg.StageOptions())
	if err := r.Model.Connect(); err != nil {
		return fmt.Errorf("failed to connect to stage: %w", err)
	}
	return nil
}

func newSimStage(cfg *config.ScanConfig) *sim.Stage {
	st := sim.NewStage(cfg.GetEnvelope())
	st.Identity = cfg.GetIdentity()
	return st
}

// OpenSampler opens only the sampler. In dev mode the simulated sampler reads
// from a simulated stage that is created alongside it.
func OpenSampler(cfg *config.ScanConfig, opts Options) (*Rig, error) {
	r := &Rig{}
	if opts.Dev {
		st := newSimStage(cfg)
		r.SimStage = st
		r.Sampler = sim.NewSampler(st, sim.DefaultSpot(), opts.Seed)
		logf("using simulated stage and sampler")
		return r, nil
	}

	if opts.SamplerPort == "" {
		return nil, errors.New("sampler serial port is required")
	}
	samplerOpts, timeout := cfg.GetSamplerSerial(), cfg.GetCommandTimeout()
	dial := func() (sampler.Querier, error) {
		conn, err := serialport.Open(opts.SamplerPort, samplerOpts, timeout)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	s, err := sampler.DialSerialSampler(dial, cfg.GetSamplerQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to open sampler: %w", err)
	}
	r.closers = append(r.closers, s.Close)
	r.Sampler = s
	return r, nil
}

// Close closes the stage model and the sampler transport. The model may
// already have been closed by a scan engine.
func (r *Rig) Close() error {
	var errs []error
	if r.Model != nil {
		errs = append(errs, r.Model.Close())
	}
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
