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
	"sort"

	"github.com/ctessum/sparse"
)

// VectorField is a time-varying vector field on a rectilinear grid.
// Components are stored with shape (time, lon, lat) for 2-D fields and
// (time, lon, lat, depth) for 3-D fields. All axes must be strictly
// increasing; time is in unix seconds.
type VectorField struct {
	Lon   []float64
	Lat   []float64
	Depth []float64 // nil for 2-D fields
	Time  []float64

	U, V *sparse.DenseArray
	W    *sparse.DenseArray // nil for 2-D fields
}

// NewVectorField validates the axes and component shapes and returns
// the assembled field.
func NewVectorField(lon, lat, depth, time []float64, u, v, w *sparse.DenseArray) (*VectorField, error) {
	vf := &VectorField{Lon: lon, Lat: lat, Depth: depth, Time: time, U: u, V: v, W: w}
	if (depth == nil) != (w == nil) {
		return nil, configErrorf("vector field must have both or neither of a depth axis and a W component")
	}
	for _, ax := range []struct {
		name string
		vals []float64
	}{{"time", time}, {"lon", lon}, {"lat", lat}, {"depth", depth}} {
		if err := checkStrictlyIncreasing(ax.name, ax.vals); err != nil {
			return nil, err
		}
	}
	wantShape := []int{len(time), len(lon), len(lat)}
	if vf.Is3D() {
		wantShape = append(wantShape, len(depth))
	}
	for _, c := range []struct {
		name string
		arr  *sparse.DenseArray
	}{{"U", u}, {"V", v}, {"W", w}} {
		if c.arr == nil {
			continue
		}
		if !equalShape(c.arr.Shape, wantShape) {
			return nil, configErrorf("vector field component %s has shape %v; expected %v",
				c.name, c.arr.Shape, wantShape)
		}
	}
	return vf, nil
}

// EmptyVectorField returns a field with no data. It stands in for
// absent forcings (e.g. a run without wind) so that downstream code
// need not special-case them.
func EmptyVectorField() *VectorField {
	return &VectorField{
		U: sparse.ZerosDense(0, 0, 0),
		V: sparse.ZerosDense(0, 0, 0),
	}
}

// Is3D reports whether the field has a depth axis.
func (vf *VectorField) Is3D() bool { return vf.Depth != nil }

// Empty reports whether the field holds no data.
func (vf *VectorField) Empty() bool { return len(vf.Time) == 0 }

func (vf *VectorField) components() []*sparse.DenseArray {
	if vf.Is3D() {
		return []*sparse.DenseArray{vf.U, vf.V, vf.W}
	}
	return []*sparse.DenseArray{vf.U, vf.V}
}

// cellsPerSample is the number of spatial grid cells in one time sample
// of one component.
func (vf *VectorField) cellsPerSample() int {
	n := len(vf.Lon) * len(vf.Lat)
	if vf.Is3D() {
		n *= len(vf.Depth)
	}
	return n
}

// SlabBytes estimates the device memory footprint of the field
// restricted to nt time samples: each component is transferred as
// 4-byte floats and each axis as 8-byte floats.
func (vf *VectorField) SlabBytes(nt int) uint64 {
	if vf.Empty() || nt <= 0 {
		return 0
	}
	components := uint64(len(vf.components())) * uint64(nt) * uint64(vf.cellsPerSample()) * 4
	axes := uint64(len(vf.Lon)+len(vf.Lat)+len(vf.Depth)+nt) * 8
	return components + axes
}

// timeSpan returns the smallest contiguous index range [i0, i1] of the
// time axis that brackets [t0, t1], so that any instant in the range
// can be interpolated without extrapolation.
func (vf *VectorField) timeSpan(t0, t1 float64) (i0, i1 int, err error) {
	if vf.Empty() {
		return 0, 0, fmt.Errorf("advector: empty vector field has no time span")
	}
	if t0 < vf.Time[0] || t1 > vf.Time[len(vf.Time)-1] {
		return 0, 0, configErrorf("requested time span [%g, %g] is not covered by the field time axis [%g, %g]",
			t0, t1, vf.Time[0], vf.Time[len(vf.Time)-1])
	}
	i0 = sort.SearchFloat64s(vf.Time, t0)
	if i0 == len(vf.Time) || vf.Time[i0] > t0 {
		i0-- // last sample at or before t0
	}
	i1 = sort.SearchFloat64s(vf.Time, t1) // first sample at or after t1
	return i0, i1, nil
}

// trim returns the field restricted to time samples [i0, i1]
// inclusive. Component data is copied so that the result is
// independent of the receiver.
func (vf *VectorField) trim(i0, i1 int) *VectorField {
	if vf.Empty() {
		return vf
	}
	out := &VectorField{
		Lon:   vf.Lon,
		Lat:   vf.Lat,
		Depth: vf.Depth,
		Time:  vf.Time[i0 : i1+1],
	}
	stride := vf.cellsPerSample()
	trimOne := func(a *sparse.DenseArray) *sparse.DenseArray {
		shape := append([]int{i1 - i0 + 1}, a.Shape[1:]...)
		t := sparse.ZerosDense(shape...)
		copy(t.Elements, a.Elements[i0*stride:(i1+1)*stride])
		return t
	}
	out.U = trimOne(vf.U)
	out.V = trimOne(vf.V)
	if vf.Is3D() {
		out.W = trimOne(vf.W)
	}
	return out
}

// axisWeight locates v on a strictly increasing axis, returning the
// lower bracketing index and the interpolation weight toward the next
// sample. Axis endpoints are included; single-sample axes match only
// their one value.
func axisWeight(axis []float64, v float64) (i int, frac float64, ok bool) {
	n := len(axis)
	if n == 0 || v < axis[0] || v > axis[n-1] {
		return 0, 0, false
	}
	if n == 1 {
		return 0, 0, true
	}
	i = sort.SearchFloat64s(axis, v) // first index with axis[i] >= v
	if i >= n-1 {
		i = n - 2
	} else if axis[i] > v && i > 0 {
		i--
	}
	frac = (v - axis[i]) / (axis[i+1] - axis[i])
	return i, frac, true
}

func lerp(a, b, f float64) float64 { return a + (b-a)*f }

func checkStrictlyIncreasing(name string, vals []float64) error {
	for i := 1; i < len(vals); i++ {
		if vals[i] <= vals[i-1] {
			return configErrorf("field %s axis is not strictly increasing at index %d (%g then %g)",
				name, i, vals[i-1], vals[i])
		}
	}
	return nil
}

func equalShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
