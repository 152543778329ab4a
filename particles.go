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

import "fmt"

// Per-particle exit codes reported by the kernel. These values are part
// of the output file format: they are written to the exit_code variable
// along with an attribute mapping each value to its meaning.
const (
	ExitSuccess         int8 = 0
	ExitNullLocation    int8 = 1
	ExitInvalidLatitude int8 = 2

	// ExitInvalidScheme is run-fatal rather than per-particle: the
	// kernel cannot advect anything without a valid scheme.
	ExitInvalidScheme int8 = -1
)

var exitCodeMeanings = map[int8]string{
	ExitSuccess:         "SUCCESS",
	ExitNullLocation:    "NULL_LOCATION",
	ExitInvalidLatitude: "INVALID_LATITUDE",
	ExitInvalidScheme:   "INVALID_ADVECTION_SCHEME",
}

// ParticleState holds the state of every particle in a run as parallel
// slices. The identifier set and its ordering are fixed when the state
// is first created and are identical across every chunk of a run.
type ParticleState struct {
	ID          []int32
	Lon         []float32
	Lat         []float32
	Depth       []float32 // all zero for 2-D runs
	Density     []float32 // kg/m3
	Radius      []float32 // m; zero disables buoyancy
	ReleaseTime []float64 // unix seconds
	ExitCode    []int8
}

// NewParticleState creates the initial state of a run from source
// positions and release times. Identifiers are assigned sequentially
// from zero and depths default to the surface.
func NewParticleState(lon, lat []float32, releaseTime []float64) (*ParticleState, error) {
	if len(lat) != len(lon) || len(releaseTime) != len(lon) {
		return nil, fmt.Errorf("advector: particle source arrays have mismatched lengths (%d, %d, %d)",
			len(lon), len(lat), len(releaseTime))
	}
	p := &ParticleState{
		ID:          make([]int32, len(lon)),
		Lon:         append([]float32{}, lon...),
		Lat:         append([]float32{}, lat...),
		Depth:       make([]float32, len(lon)),
		Density:     make([]float32, len(lon)),
		Radius:      make([]float32, len(lon)),
		ReleaseTime: append([]float64{}, releaseTime...),
		ExitCode:    make([]int8, len(lon)),
	}
	for i := range p.ID {
		p.ID[i] = int32(i)
	}
	return p, nil
}

// Len returns the number of particles.
func (p *ParticleState) Len() int { return len(p.ID) }

// Copy returns a deep copy of the state.
func (p *ParticleState) Copy() *ParticleState {
	return &ParticleState{
		ID:          append([]int32{}, p.ID...),
		Lon:         append([]float32{}, p.Lon...),
		Lat:         append([]float32{}, p.Lat...),
		Depth:       append([]float32{}, p.Depth...),
		Density:     append([]float32{}, p.Density...),
		Radius:      append([]float32{}, p.Radius...),
		ReleaseTime: append([]float64{}, p.ReleaseTime...),
		ExitCode:    append([]int8{}, p.ExitCode...),
	}
}
