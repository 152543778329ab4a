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

// nextChunkState derives the initial particle state of the next chunk
// from the previous state and a completed kernel's result. Particles
// not yet released by the chunk's end keep their placeholder position
// from the previous state (the kernel reports NaN for them); released
// particles take the kernel's final position. Exit codes are monotonic:
// a nonzero code is never replaced by a later success, while a later
// nonzero code replaces an earlier one.
func nextChunkState(prev *ParticleState, r *kernelResult, chunkEnd float64) *ParticleState {
	next := prev.Copy()
	for i := range next.ID {
		if c := r.exitCode[i]; c != ExitSuccess {
			next.ExitCode[i] = c
		}
		if next.ReleaseTime[i] > chunkEnd {
			continue // unreleased: carry the placeholder forward
		}
		next.Lon[i] = r.finalLon[i]
		next.Lat[i] = r.finalLat[i]
		if r.finalDepth != nil {
			next.Depth[i] = r.finalDepth[i]
		}
	}
	return next
}
