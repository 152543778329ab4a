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
	"math"
	"math/rand"
	"sync"
	"time"
)

// kernelKind tags the closed set of kernel variants. The 2-D and 3-D
// kernels differ in buffer layout (no depth axis, no W component, no
// vertical motion); the variant is selected once at configuration time.
type kernelKind int

const (
	kernel2D kernelKind = iota + 1
	kernel3D
)

// kernelConfig carries the fixed parameters of every kernel invocation
// in a run.
type kernelConfig struct {
	kind   kernelKind
	scheme AdvectionScheme
	params schemeParams
	seed   int64
}

// forcings bundles the fields consumed by the kernel. wind and density
// may be empty.
type forcings struct {
	current, wind, density *VectorField
}

// kernel executes the advection of one chunk on the device. It owns
// its device buffers exclusively: they are allocated sized exactly to
// the chunk in newKernel and every one of them is released before
// results are returned to the orchestrator. A kernel is used for
// exactly one dispatch.
type kernel struct {
	dev   *Device
	cfg   kernelConfig
	chunk chunkSpec
	np    int

	current, wind, density *deviceField
	fieldBufs              []*buffer

	x0, y0, z0  *buffer // particle positions in (float32)
	rho, rad    *buffer // particle density and radius, 3-D only (float32)
	releaseTime *buffer // release times (float64)
	codes       *buffer // exit codes, carried across chunks (int8)
	xOut, yOut  *buffer // saved positions, particle-major (float32)
	zOut        *buffer
	xEnd, yEnd  *buffer // final positions for state hand-off (float32)
	zEnd        *buffer
	fieldBytes  uint64
	outBytes    uint64
	stateBytes  uint64
	bufTime     time.Duration
	kernelTime  time.Duration
	released    bool
}

// kernelResult is the host-side copy of a kernel's output. Saved
// positions are particle-major: particle p's position at save instant
// s is index p*outSteps+s.
type kernelResult struct {
	outSteps                       int
	lon, lat, depth                []float32
	finalLon, finalLat, finalDepth []float32
	exitCode                       []int8

	bufferTime, kernelTime time.Duration
	footprint              map[string]uint64
}

// newKernel allocates device buffers sized exactly to one chunk and
// transfers the chunk's field slabs and particle state into them. The
// transfer is timed as buffer-transfer time. On any allocation failure
// all buffers allocated so far are released before the error (a
// DeviceResourceError) is returned.
func newKernel(dev *Device, cfg kernelConfig, chunk chunkSpec, f forcings, p0 *ParticleState) (*kernel, error) {
	k := &kernel{dev: dev, cfg: cfg, chunk: chunk, np: p0.Len()}
	start := time.Now()
	if err := k.marshalFields(f); err != nil {
		k.release()
		return nil, err
	}
	if err := k.marshalParticles(p0); err != nil {
		k.release()
		return nil, err
	}
	k.bufTime = time.Since(start)
	return k, nil
}

func (k *kernel) marshalFields(f forcings) error {
	var err error
	k.current, err = k.marshalField(f.current)
	if err != nil {
		return err
	}
	k.wind, err = k.marshalField(f.wind)
	if err != nil {
		return err
	}
	k.density, err = k.marshalField(f.density)
	if err != nil {
		return err
	}
	return nil
}

// marshalField transfers the slab of one field bracketing the chunk's
// time span into device buffers.
func (k *kernel) marshalField(vf *VectorField) (*deviceField, error) {
	df := &deviceField{}
	if vf == nil || vf.Empty() {
		return df, nil
	}
	i0, i1, err := vf.timeSpan(k.chunk.start(), k.chunk.end())
	if err != nil {
		return nil, err
	}
	nt := i1 - i0 + 1
	axis := func(vals []float64) ([]float64, error) {
		if vals == nil {
			return nil, nil
		}
		b, err := k.dev.newFloat64Buffer(len(vals))
		if err != nil {
			return nil, err
		}
		k.fieldBufs = append(k.fieldBufs, b)
		k.fieldBytes += b.nbytes
		copy(b.f64, vals)
		return b.f64, nil
	}
	if df.time, err = axis(vf.Time[i0 : i1+1]); err != nil {
		return nil, err
	}
	if df.lon, err = axis(vf.Lon); err != nil {
		return nil, err
	}
	if df.lat, err = axis(vf.Lat); err != nil {
		return nil, err
	}
	if df.depth, err = axis(vf.Depth); err != nil {
		return nil, err
	}
	stride := vf.cellsPerSample()
	component := func(a []float64) ([]float32, error) {
		b, err := k.dev.newFloat32Buffer(nt * stride)
		if err != nil {
			return nil, err
		}
		k.fieldBufs = append(k.fieldBufs, b)
		k.fieldBytes += b.nbytes
		for i, v := range a[i0*stride : (i1+1)*stride] {
			b.f32[i] = float32(v)
		}
		return b.f32, nil
	}
	if df.u, err = component(vf.U.Elements); err != nil {
		return nil, err
	}
	if df.v, err = component(vf.V.Elements); err != nil {
		return nil, err
	}
	if vf.Is3D() {
		if df.w, err = component(vf.W.Elements); err != nil {
			return nil, err
		}
	}
	return df, nil
}

func (k *kernel) marshalParticles(p0 *ParticleState) error {
	np := k.np
	outSteps := len(k.chunk.outTime)
	var err error
	newF32 := func(src []float32) (*buffer, error) {
		b, err := k.dev.newFloat32Buffer(np)
		if err != nil {
			return nil, err
		}
		k.stateBytes += b.nbytes
		copy(b.f32, src)
		return b, nil
	}
	if k.x0, err = newF32(p0.Lon); err != nil {
		return err
	}
	if k.y0, err = newF32(p0.Lat); err != nil {
		return err
	}
	if k.cfg.kind == kernel3D {
		if k.z0, err = newF32(p0.Depth); err != nil {
			return err
		}
		if k.rho, err = newF32(p0.Density); err != nil {
			return err
		}
		if k.rad, err = newF32(p0.Radius); err != nil {
			return err
		}
	}
	if k.releaseTime, err = k.dev.newFloat64Buffer(np); err != nil {
		return err
	}
	k.stateBytes += k.releaseTime.nbytes
	copy(k.releaseTime.f64, p0.ReleaseTime)
	if k.codes, err = k.dev.newInt8Buffer(np); err != nil {
		return err
	}
	k.stateBytes += k.codes.nbytes
	copy(k.codes.i8, p0.ExitCode)

	newOut := func(n int) (*buffer, error) {
		b, err := k.dev.newFloat32Buffer(n)
		if err != nil {
			return nil, err
		}
		k.outBytes += b.nbytes
		// Output positions default to NaN; the kernel only overwrites
		// them once a particle has been released.
		for i := range b.f32 {
			b.f32[i] = float32(math.NaN())
		}
		return b, nil
	}
	if k.xOut, err = newOut(np * outSteps); err != nil {
		return err
	}
	if k.yOut, err = newOut(np * outSteps); err != nil {
		return err
	}
	if k.xEnd, err = newOut(np); err != nil {
		return err
	}
	if k.yEnd, err = newOut(np); err != nil {
		return err
	}
	if k.cfg.kind == kernel3D {
		if k.zOut, err = newOut(np * outSteps); err != nil {
			return err
		}
		if k.zEnd, err = newOut(np); err != nil {
			return err
		}
	}
	return nil
}

// execute performs the kernel's single dispatch, advancing every
// particle across all of the chunk's timesteps. Particles are advanced
// in parallel across the device's work units; each particle is
// independent so no synchronization is needed beyond joining.
func (k *kernel) execute() {
	start := time.Now()
	is3D := k.cfg.kind == kernel3D
	saveEvery := k.steps() / maxInt(len(k.chunk.outTime), 1)

	nprocs := k.dev.workers
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for p := pp; p < k.np; p += nprocs {
				k.advectParticle(p, saveEvery, is3D)
			}
		}(pp)
	}
	wg.Wait()
	k.kernelTime = time.Since(start)
}

func (k *kernel) steps() int { return k.chunk.steps() }

// advectParticle runs the whole chunk for a single particle.
func (k *kernel) advectParticle(p, saveEvery int, is3D bool) {
	outSteps := len(k.chunk.outTime)
	code := k.codes.i8[p]
	if !k.cfg.scheme.valid() {
		k.codes.i8[p] = ExitInvalidScheme
		return
	}
	lon := float64(k.x0.f32[p])
	lat := float64(k.y0.f32[p])
	depth, rho, radius := 0., 0., 0.
	if is3D {
		depth = float64(k.z0.f32[p])
		rho = float64(k.rho.f32[p])
		radius = float64(k.rad.f32[p])
	}
	release := k.releaseTime.f64[p]
	rng := rand.New(rand.NewSource(k.cfg.seed ^ int64(p)<<17 ^ int64(k.chunk.start())))

	for i := 0; i < k.steps(); i++ {
		t := k.chunk.advectTime[i]
		if code == ExitSuccess && t >= release {
			newLon, newLat, newDepth, c := advectStep(k.cfg.scheme, k.current, k.wind, k.density, k.cfg.params,
				rng, t, lon, lat, depth, rho, radius, is3D)
			if c != ExitSuccess {
				code = c // position freezes from here on
			} else {
				lon, lat, depth = newLon, newLat, newDepth
			}
		}
		if (i+1)%saveEvery == 0 {
			o := (i+1)/saveEvery - 1
			if k.chunk.advectTime[i+1] >= release {
				k.xOut.f32[p*outSteps+o] = float32(lon)
				k.yOut.f32[p*outSteps+o] = float32(lat)
				if is3D {
					k.zOut.f32[p*outSteps+o] = float32(depth)
				}
			}
		}
	}
	if k.chunk.end() >= release {
		k.xEnd.f32[p] = float32(lon)
		k.yEnd.f32[p] = float32(lat)
		if is3D {
			k.zEnd.f32[p] = float32(depth)
		}
	}
	k.codes.i8[p] = code
}

// results retrieves the kernel's output from the device and then
// releases every buffer. The retrieval copy counts as buffer-transfer
// time.
func (k *kernel) results() *kernelResult {
	start := time.Now()
	r := &kernelResult{
		outSteps: len(k.chunk.outTime),
		lon:      append([]float32{}, k.xOut.f32...),
		lat:      append([]float32{}, k.yOut.f32...),
		finalLon: append([]float32{}, k.xEnd.f32...),
		finalLat: append([]float32{}, k.yEnd.f32...),
		exitCode: append([]int8{}, k.codes.i8...),
		footprint: map[string]uint64{
			"fields":    k.fieldBytes,
			"particles": k.stateBytes,
			"output":    k.outBytes,
		},
	}
	if k.cfg.kind == kernel3D {
		r.depth = append([]float32{}, k.zOut.f32...)
		r.finalDepth = append([]float32{}, k.zEnd.f32...)
	}
	k.bufTime += time.Since(start)
	r.bufferTime = k.bufTime
	r.kernelTime = k.kernelTime
	k.release()
	return r
}

// release frees every device buffer held by the kernel. It must run
// before the next chunk's kernel is created.
func (k *kernel) release() {
	if k.released {
		return
	}
	k.released = true
	for _, b := range k.fieldBufs {
		b.free()
	}
	k.fieldBufs = nil
	for _, b := range []*buffer{k.x0, k.y0, k.z0, k.rho, k.rad, k.releaseTime, k.codes,
		k.xOut, k.yOut, k.zOut, k.xEnd, k.yEnd, k.zEnd} {
		b.free()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
