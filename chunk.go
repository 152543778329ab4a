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

import "sort"

// chunkSpec describes one memory-bounded, contiguous slice of the
// advection timeline. advectTime holds every timestep instant in the
// chunk, the first of which is the chunk's initial state and is never
// written as output; outTime holds the save instants, which are a
// suffix-aligned subset of advectTime. The output ranges of successive
// chunks share only their boundary instants.
type chunkSpec struct {
	advectTime []float64
	outTime    []float64
}

func (c chunkSpec) steps() int     { return len(c.advectTime) - 1 }
func (c chunkSpec) start() float64 { return c.advectTime[0] }
func (c chunkSpec) end() float64   { return c.advectTime[len(c.advectTime)-1] }

// particleBytes estimates the device memory footprint of the particle
// buffers for one chunk: per-particle state in, position output for
// each save instant, and the final positions handed to the next chunk.
func particleBytes(np, outSteps int, is3D bool) uint64 {
	posComponents := 2
	perParticle := posComponents*4 + 8 + 1 // positions + release time + exit code
	if is3D {
		posComponents = 3
		perParticle = posComponents*4 + 8 + 1 + 2*4 // plus density and radius
	}
	state := uint64(np) * uint64(perParticle)
	out := uint64(np) * uint64(outSteps) * uint64(posComponents) * 4
	finals := uint64(np) * uint64(posComponents) * 4
	return state + out + finals
}

// chunkFootprint estimates the total device footprint of a chunk
// spanning [t0, t1]: the slab of every forcing field bracketing the
// span, plus the particle I/O buffers.
func chunkFootprint(fields []*VectorField, t0, t1 float64, np, outSteps int, is3D bool) (uint64, error) {
	var total uint64
	for _, f := range fields {
		if f.Empty() {
			continue
		}
		i0, i1, err := f.timeSpan(t0, t1)
		if err != nil {
			return 0, err
		}
		total += f.SlabBytes(i1 - i0 + 1)
	}
	return total + particleBytes(np, outSteps, is3D), nil
}

// chunkAdvectionParams partitions the advection timeline into an
// ordered sequence of chunks, each of whose estimated device footprint
// fits within budget. Chunks are grown greedily across the time samples
// of the primary field (fields[0], the current), and closed at the last
// sample that still fit; the chunk's output range is then capped to the
// last save instant at or before that sample, so that every chunk
// advances the run by a whole number of save periods. If even the
// smallest possible chunk exceeds the budget, a ConfigurationError is
// returned rather than a zero-length chunk.
func chunkAdvectionParams(fields []*VectorField, np int, advectTime []float64, saveEvery int, budget uint64) ([]chunkSpec, error) {
	if len(advectTime) < 2 {
		return nil, configErrorf("advection timeline must contain at least one timestep")
	}
	nSteps := len(advectTime) - 1
	if saveEvery < 1 {
		return nil, configErrorf("save cadence must be positive (got %d)", saveEvery)
	}
	if nSteps%saveEvery != 0 {
		return nil, configErrorf("save cadence %d does not evenly divide the %d requested timesteps", saveEvery, nSteps)
	}
	if len(fields) == 0 || fields[0].Empty() {
		return nil, configErrorf("a current field is required")
	}
	primary := fields[0]
	is3D := primary.Is3D()
	t0, tEnd := advectTime[0], advectTime[len(advectTime)-1]
	_, sEnd, err := primary.timeSpan(t0, tEnd)
	if err != nil {
		return nil, err
	}

	// Save instants, counted on the global cadence from the run start.
	saves := make([]float64, 0, nSteps/saveEvery)
	for j := saveEvery; j <= nSteps; j += saveEvery {
		saves = append(saves, advectTime[j])
	}

	var chunks []chunkSpec
	chunkStart := t0
	startIdx := 0 // index of chunkStart in advectTime
	nextSave := 0 // index of the first save instant not yet covered
	for nextSave < len(saves) {
		// The earliest field sample whose capped end would advance the
		// run by at least one save period.
		e := sort.SearchFloat64s(primary.Time, saves[nextSave])
		covered := savesAtOrBefore(saves, cappedEnd(primary.Time[e], tEnd))

		fp, err := chunkFootprint(fields, chunkStart, saves[covered-1], np, covered-nextSave, is3D)
		if err != nil {
			return nil, err
		}
		if fp > budget {
			return nil, configErrorf("memory budget of %d bytes cannot fit even one timestep plus one "+
				"output step (%d bytes); lower the particle count or provide more device memory", budget, fp)
		}

		// Grow the chunk while the footprint stays within budget.
		for e < sEnd && saves[covered-1] < tEnd {
			grownCovered := savesAtOrBefore(saves, cappedEnd(primary.Time[e+1], tEnd))
			fp, err := chunkFootprint(fields, chunkStart, saves[grownCovered-1], np, grownCovered-nextSave, is3D)
			if err != nil {
				return nil, err
			}
			if fp > budget {
				break
			}
			e++
			covered = grownCovered
		}

		endIdx := covered * saveEvery
		chunks = append(chunks, chunkSpec{
			advectTime: advectTime[startIdx : endIdx+1],
			outTime:    saves[nextSave:covered],
		})
		chunkStart = advectTime[endIdx]
		startIdx = endIdx
		nextSave = covered
	}
	return chunks, nil
}

// cappedEnd caps a field sample instant to the end of the requested
// timeline.
func cappedEnd(sample, tEnd float64) float64 {
	if sample > tEnd {
		return tEnd
	}
	return sample
}

// savesAtOrBefore returns how many save instants are at or before t.
func savesAtOrBefore(saves []float64, t float64) int {
	n := sort.SearchFloat64s(saves, t)
	if n < len(saves) && saves[n] == t {
		n++
	}
	return n
}
