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
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Standard variable names. Input files using different names are
// renamed through a variable mapping (file name to standard name);
// more involved normalization is the data preparer's responsibility.
const (
	varLon         = "lon"
	varLat         = "lat"
	varDepth       = "depth"
	varTime        = "time"
	varReleaseDate = "release_date"
	varPID         = "p_id"
	varDensity     = "density"
	varRadius      = "radius"
)

// ReadVectorField2D assembles a 2-D vector field from the zonal and
// meridional component files matched by the two glob patterns. Files
// are concatenated along the time axis in name order, so sorting paths
// by name must equal sorting them in time. Components must be shaped
// (time, lon, lat).
func ReadVectorField2D(uGlob, vGlob string, mapping map[string]string) (*VectorField, error) {
	return readVectorField(uGlob, vGlob, "", mapping)
}

// ReadVectorField3D is ReadVectorField2D with a vertical component and
// a depth axis; components must be shaped (time, lon, lat, depth).
func ReadVectorField3D(uGlob, vGlob, wGlob string, mapping map[string]string) (*VectorField, error) {
	return readVectorField(uGlob, vGlob, wGlob, mapping)
}

// ReadScalarField reads a single-component field (e.g. seawater
// density, shaped (time, lon, lat, depth) when is3D) into a
// VectorField whose U component holds the data and whose V is zero.
func ReadScalarField(glob, varName string, mapping map[string]string, is3D bool) (*VectorField, error) {
	a, axes, err := readComponentFiles(glob, varName, mapping, is3D)
	if err != nil {
		return nil, err
	}
	normalizeLongitude(&axes, a)
	return NewVectorField(axes.lon, axes.lat, axes.depth, axes.time, a, sparse.ZerosDense(a.Shape...), nil)
}

func readVectorField(uGlob, vGlob, wGlob string, mapping map[string]string) (*VectorField, error) {
	is3D := wGlob != ""
	u, uAxes, err := readComponentFiles(uGlob, "U", mapping, is3D)
	if err != nil {
		return nil, err
	}
	v, vAxes, err := readComponentFiles(vGlob, "V", mapping, is3D)
	if err != nil {
		return nil, err
	}
	if !sameAxes(uAxes, vAxes) {
		return nil, configErrorf("U and V files have differing grids")
	}
	var w *sparse.DenseArray
	if is3D {
		var wAxes fieldAxes
		w, wAxes, err = readComponentFiles(wGlob, "W", mapping, true)
		if err != nil {
			return nil, err
		}
		if !sameAxes(uAxes, wAxes) {
			return nil, configErrorf("U and W files have differing grids")
		}
	}
	normalizeLongitude(&uAxes, u, v, w)
	return NewVectorField(uAxes.lon, uAxes.lat, uAxes.depth, uAxes.time, u, v, w)
}

type fieldAxes struct {
	lon, lat, depth, time []float64
}

func sameAxes(a, b fieldAxes) bool {
	eq := func(x, y []float64) bool {
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	}
	return eq(a.lon, b.lon) && eq(a.lat, b.lat) && eq(a.depth, b.depth) && eq(a.time, b.time)
}

// readComponentFiles reads one vector component from every file
// matching the glob pattern and concatenates the results along time.
func readComponentFiles(glob, stdName string, mapping map[string]string, is3D bool) (*sparse.DenseArray, fieldAxes, error) {
	var axes fieldAxes
	paths, err := filepath.Glob(glob)
	if err != nil {
		return nil, axes, fmt.Errorf("advector: bad file pattern %q: %v", glob, err)
	}
	if len(paths) == 0 {
		return nil, axes, fmt.Errorf("advector: no files match %q", glob)
	}
	sort.Strings(paths)

	var elements []float64
	var spatial []int
	for _, path := range paths {
		a, ax, err := readComponentFile(path, stdName, mapping, is3D)
		if err != nil {
			return nil, axes, err
		}
		if axes.lon == nil {
			axes = ax
			spatial = a.Shape[1:]
			elements = append(elements, a.Elements...)
			continue
		}
		if !sameAxes(fieldAxes{lon: axes.lon, lat: axes.lat, depth: axes.depth}, fieldAxes{lon: ax.lon, lat: ax.lat, depth: ax.depth}) {
			return nil, axes, configErrorf("files matching %q have differing spatial grids", glob)
		}
		axes.time = append(axes.time, ax.time...)
		elements = append(elements, a.Elements...)
	}
	if err := checkStrictlyIncreasing("time", axes.time); err != nil {
		return nil, axes, err
	}
	out := sparse.ZerosDense(append([]int{len(axes.time)}, spatial...)...)
	copy(out.Elements, elements)
	return out, axes, nil
}

func readComponentFile(path, stdName string, mapping map[string]string, is3D bool) (*sparse.DenseArray, fieldAxes, error) {
	var axes fieldAxes
	f, err := os.Open(path)
	if err != nil {
		return nil, axes, fmt.Errorf("advector: opening %s: %v", path, err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		return nil, axes, fmt.Errorf("advector: reading %s: %v", path, err)
	}

	read := func(std string) ([]float64, error) {
		vals, _, err := readVar(cf, fileVarName(std, mapping))
		if err != nil {
			return nil, fmt.Errorf("advector: %s: %v", path, err)
		}
		return vals, nil
	}
	if axes.lon, err = read(varLon); err != nil {
		return nil, axes, err
	}
	if axes.lat, err = read(varLat); err != nil {
		return nil, axes, err
	}
	if axes.time, err = read(varTime); err != nil {
		return nil, axes, err
	}
	if is3D {
		if axes.depth, err = read(varDepth); err != nil {
			return nil, axes, err
		}
	}

	vals, shape, err := readVar(cf, fileVarName(stdName, mapping))
	if err != nil {
		return nil, axes, fmt.Errorf("advector: %s: %v", path, err)
	}
	wantShape := []int{len(axes.time), len(axes.lon), len(axes.lat)}
	if is3D {
		wantShape = append(wantShape, len(axes.depth))
	}
	if !equalShape(shape, wantShape) {
		return nil, axes, configErrorf("%s: variable %s has shape %v; expected %v",
			path, fileVarName(stdName, mapping), shape, wantShape)
	}
	a := sparse.ZerosDense(shape...)
	copy(a.Elements, vals)
	return a, axes, nil
}

// ReadParticleSource reads initial particle records (lon, lat,
// release_date and optionally depth and p_id) from a NetCDF
// sourcefile.
func ReadParticleSource(path string, mapping map[string]string) (*ParticleState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("advector: opening sourcefile %s: %v", path, err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("advector: reading sourcefile %s: %v", path, err)
	}

	lon, _, err := readVar(cf, fileVarName(varLon, mapping))
	if err != nil {
		return nil, fmt.Errorf("advector: sourcefile %s: %v", path, err)
	}
	lat, _, err := readVar(cf, fileVarName(varLat, mapping))
	if err != nil {
		return nil, fmt.Errorf("advector: sourcefile %s: %v", path, err)
	}
	release, _, err := readVar(cf, fileVarName(varReleaseDate, mapping))
	if err != nil {
		return nil, fmt.Errorf("advector: sourcefile %s: %v", path, err)
	}
	p, err := NewParticleState(toFloat32(lon), toFloat32(lat), release)
	if err != nil {
		return nil, err
	}
	if depth, _, err := readVar(cf, fileVarName(varDepth, mapping)); err == nil {
		if len(depth) != p.Len() {
			return nil, configErrorf("sourcefile %s: depth has %d values for %d particles", path, len(depth), p.Len())
		}
		p.Depth = toFloat32(depth)
	}
	if ids, _, err := readVar(cf, fileVarName(varPID, mapping)); err == nil {
		if len(ids) != p.Len() {
			return nil, configErrorf("sourcefile %s: p_id has %d values for %d particles", path, len(ids), p.Len())
		}
		for i, id := range ids {
			p.ID[i] = int32(id)
		}
	}
	// Per-particle buoyancy properties; particles without them are
	// neutrally buoyant.
	if rho, _, err := readVar(cf, fileVarName(varDensity, mapping)); err == nil {
		if len(rho) != p.Len() {
			return nil, configErrorf("sourcefile %s: density has %d values for %d particles", path, len(rho), p.Len())
		}
		p.Density = toFloat32(rho)
	}
	if rad, _, err := readVar(cf, fileVarName(varRadius, mapping)); err == nil {
		if len(rad) != p.Len() {
			return nil, configErrorf("sourcefile %s: radius has %d values for %d particles", path, len(rad), p.Len())
		}
		p.Radius = toFloat32(rad)
	}
	return p, nil
}

// fileVarName returns the name a standard variable has within an input
// file, given a mapping from file names to standard names.
func fileVarName(std string, mapping map[string]string) string {
	for file, mapped := range mapping {
		if mapped == std {
			return file
		}
	}
	return std
}

// readVar reads an entire variable from a NetCDF file as float64,
// converting from the on-disk type.
func readVar(cf *cdf.File, name string) ([]float64, []int, error) {
	shape := cf.Header.Lengths(name)
	if len(shape) == 0 {
		return nil, nil, fmt.Errorf("variable %s not in file", name)
	}
	r := cf.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, nil, fmt.Errorf("reading variable %s: %v", name, err)
	}
	var vals []float64
	switch b := buf.(type) {
	case []float64:
		vals = b
	case []float32:
		vals = make([]float64, len(b))
		for i, v := range b {
			vals[i] = float64(v)
		}
	case []int32:
		vals = make([]float64, len(b))
		for i, v := range b {
			vals[i] = float64(v)
		}
	case []int16:
		vals = make([]float64, len(b))
		for i, v := range b {
			vals[i] = float64(v)
		}
	case []uint8:
		// BYTE data is signed in the classic model.
		vals = make([]float64, len(b))
		for i, v := range b {
			vals[i] = float64(int8(v))
		}
	default:
		return nil, nil, fmt.Errorf("variable %s has unsupported type %T", name, buf)
	}
	return vals, shape, nil
}

func toFloat32(vals []float64) []float32 {
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = float32(v)
	}
	return out
}

// normalizeLongitude converts a [0, 360] longitude axis to
// [-180, 180) and re-sorts the axis and the component data to keep the
// axis strictly increasing.
func normalizeLongitude(axes *fieldAxes, components ...*sparse.DenseArray) {
	needsWrap := false
	for _, l := range axes.lon {
		if l > 180 {
			needsWrap = true
			break
		}
	}
	if !needsWrap {
		return
	}
	nLon := len(axes.lon)
	wrapped := make([]float64, nLon)
	for i, l := range axes.lon {
		wrapped[i] = wrapLon(l)
	}
	perm := make([]int, nLon)
	for i := range perm {
		perm[i] = i
	}
	sort.Slice(perm, func(a, b int) bool { return wrapped[perm[a]] < wrapped[perm[b]] })
	sorted := make([]float64, nLon)
	for i, p := range perm {
		sorted[i] = wrapped[p]
	}
	axes.lon = sorted

	// Reorder the lon dimension of each component. Data is shaped
	// (time, lon, lat[, depth]), so each lon index owns a contiguous
	// block within each time sample.
	for _, a := range components {
		if a == nil {
			continue
		}
		block := 1
		for _, n := range a.Shape[2:] {
			block *= n
		}
		sampleLen := nLon * block
		tmp := make([]float64, sampleLen)
		for t := 0; t < a.Shape[0]; t++ {
			sample := a.Elements[t*sampleLen : (t+1)*sampleLen]
			for i, p := range perm {
				copy(tmp[i*block:(i+1)*block], sample[p*block:(p+1)*block])
			}
			copy(sample, tmp)
		}
	}
}
