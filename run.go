/*
Copyright © 2021 the ADVECTOR authors.
This file is part of ADVECTOR.

ADVECTOR is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ADVECTOR is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ADVECTOR.  If not, see <http://www.gnu.org/licenses/>.
*/

package advector

import (
	"context"
	"fmt"
	"time"

	"github.com/GaryBoone/GoStats/stats"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// RunConfig holds the per-run parameters consumed by the orchestrator.
// The scheme selector and the physics scalars are passed through to the
// kernel opaquely.
type RunConfig struct {
	StartTime    time.Time
	Timestep     time.Duration
	NumTimesteps int
	// SaveEvery writes particle state every SaveEvery timesteps. It
	// must evenly divide NumTimesteps.
	SaveEvery int

	Scheme            AdvectionScheme
	EddyDiffusivity   float64 // m2/s
	WindageMultiplier float64 // 0 disables windage
	WindMixing        bool

	// MemoryUtilization is the fraction of device memory assumed
	// usable for buffers, in (0, 1].
	MemoryUtilization float64

	Seed    int64
	Verbose bool
}

// Timing holds the cross-chunk accumulated device timings of a run.
type Timing struct {
	BufferTransfer  time.Duration
	KernelExecution time.Duration
	Chunks          int
}

// RunChunkedAdvection advects p0 through the given forcing fields,
// chunking the problem to fit the device memory budget and streaming
// each chunk's results to w. Chunks execute strictly sequentially:
// each chunk's kernel buffers are released before the next chunk's are
// allocated. ctx is checked only between chunks; on cancellation or
// any fatal error the artifacts of all completed chunks remain on disk
// and valid. The returned Timing accumulates buffer-transfer and
// kernel-execution time across all chunks.
func RunChunkedAdvection(ctx context.Context, dev *Device, current, wind, density *VectorField,
	p0 *ParticleState, cfg RunConfig, w *OutputWriter) (Timing, error) {

	var timing Timing
	if cfg.NumTimesteps < 1 {
		return timing, configErrorf("at least one timestep is required")
	}
	if wind == nil {
		wind = EmptyVectorField()
	}
	if density == nil {
		density = EmptyVectorField()
	}

	t0 := float64(cfg.StartTime.Unix())
	dt := cfg.Timestep.Seconds()
	tEnd := t0 + float64(cfg.NumTimesteps)*dt
	advectTime := floats.Span(make([]float64, cfg.NumTimesteps+1), t0, tEnd)

	// Trim the fields to the advection time range before planning.
	fields := make([]*VectorField, 0, 3)
	for _, f := range []*VectorField{current, wind, density} {
		if !f.Empty() {
			i0, i1, err := f.timeSpan(t0, tEnd)
			if err != nil {
				return timing, err
			}
			f = f.trim(i0, i1)
		}
		fields = append(fields, f)
	}
	current, wind, density = fields[0], fields[1], fields[2]

	budget, err := dev.MemoryBudget(cfg.MemoryUtilization)
	if err != nil {
		return timing, err
	}
	chunks, err := chunkAdvectionParams(fields, p0.Len(), advectTime, cfg.SaveEvery, budget)
	if err != nil {
		return timing, err
	}
	log.Infof("Planned %d chunk(s) within a %d byte device budget on %s", len(chunks), budget, dev.Name())

	kind := kernel2D
	if current.Is3D() {
		kind = kernel3D
	}
	kcfg := kernelConfig{
		kind:   kind,
		scheme: cfg.Scheme,
		params: schemeParams{
			dt:                dt,
			eddyDiffusivity:   cfg.EddyDiffusivity,
			windageMultiplier: cfg.WindageMultiplier,
			windMixing:        cfg.WindMixing,
		},
		seed: cfg.Seed,
	}

	var bufStats, kernelStats stats.Stats
	state := p0.Copy()
	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			return timing, ctx.Err()
		default:
		}
		log.Infof("Chunk %3d/%d: %s to %s", i+1, len(chunks),
			formatInstant(chunk.start()), formatInstant(chunk.end()))

		k, err := newKernel(dev, kcfg, chunk, forcings{current: current, wind: wind, density: density}, state)
		if err != nil {
			return timing, err
		}
		k.execute()
		r := k.results() // also releases the kernel's buffers

		timing.BufferTransfer += r.bufferTime
		timing.KernelExecution += r.kernelTime
		timing.Chunks++
		bufStats.Update(r.bufferTime.Seconds())
		kernelStats.Update(r.kernelTime.Seconds())
		if cfg.Verbose {
			for _, part := range []string{"fields", "particles", "output"} {
				log.Debugf("  %s buffers: %d bytes", part, r.footprint[part])
			}
			log.Debugf("  buffer transfer %v, kernel execution %v", r.bufferTime, r.kernelTime)
		}

		state = nextChunkState(state, r, chunk.end())
		if err := checkFatalCodes(r); err != nil {
			return timing, err
		}
		if err := w.WriteChunk(chunk, r, state); err != nil {
			return timing, err
		}
	}

	if timing.Chunks > 1 {
		log.Infof("Mean chunk timing: transfer %.3gs (stddev %.3gs), kernel %.3gs (stddev %.3gs)",
			bufStats.Mean(), bufStats.SampleStandardDeviation(),
			kernelStats.Mean(), kernelStats.SampleStandardDeviation())
	}
	return timing, nil
}

// checkFatalCodes inspects a kernel result for run-fatal exit codes.
// Per-particle failures are recorded in the exit-code field and do not
// stop the run; an invalid advection scheme does.
func checkFatalCodes(r *kernelResult) error {
	for _, c := range r.exitCode {
		if c == ExitInvalidScheme {
			return fmt.Errorf("advector: kernel reported INVALID_ADVECTION_SCHEME; aborting run")
		}
	}
	return nil
}

func formatInstant(t float64) string {
	return time.Unix(int64(t), 0).UTC().Format("2006-01-02 15:04:05")
}
