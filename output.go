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
	"strings"
	"time"

	"github.com/ctessum/cdf"
)

const timeUnits = "seconds since 1970-01-01 00:00:00.0"

// OutputWriter streams particle trajectories to one NetCDF file per
// calendar year. A year's file is created the first time a chunk
// produces output in that year and appended along its unlimited time
// dimension by every later chunk overlapping the year. The writer
// never buffers more than one chunk, and each file is complete and
// independently readable after every append.
type OutputWriter struct {
	dir  string
	np   int
	is3D bool

	ids          []int32
	releaseDates []float64

	currentYear int
	f           *os.File
	cf          *cdf.File
	nt          int // records written to the current year's file
	paths       []string
}

// NewOutputWriter creates a writer for one run's output, creating the
// output directory if it does not exist. The particle axis of every
// artifact is fixed to the id set of p0.
func NewOutputWriter(dir string, p0 *ParticleState, is3D bool) (*OutputWriter, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("advector: creating output directory: %v", err)
	}
	return &OutputWriter{
		dir:          dir,
		np:           p0.Len(),
		is3D:         is3D,
		ids:          append([]int32{}, p0.ID...),
		releaseDates: append([]float64{}, p0.ReleaseTime...),
		currentYear:  -1,
	}, nil
}

// Paths returns the artifacts written so far, in creation order.
func (w *OutputWriter) Paths() []string { return w.paths }

// WriteChunk persists one chunk's saved positions, split by the
// calendar year of each output timestamp. state must be the particle
// state resulting from the chunk (its exit codes already merged under
// the monotonicity rule); the exit_code variable of every touched year
// is rewritten in full, since it is a per-particle rather than
// per-timestep quantity.
func (w *OutputWriter) WriteChunk(chunk chunkSpec, r *kernelResult, state *ParticleState) error {
	times := chunk.outTime
	for s := 0; s < len(times); {
		year := time.Unix(int64(times[s]), 0).UTC().Year()
		e := s
		for e < len(times) && time.Unix(int64(times[e]), 0).UTC().Year() == year {
			e++
		}
		if err := w.writeYearSlice(year, times[s:e], r, s, e, state); err != nil {
			return err
		}
		s = e
	}
	return nil
}

func (w *OutputWriter) writeYearSlice(year int, times []float64, r *kernelResult, s, e int, state *ParticleState) error {
	if year != w.currentYear {
		if err := w.closeCurrent(); err != nil {
			return err
		}
		if err := w.createYearFile(year); err != nil {
			return err
		}
	}

	n := e - s
	// Record variables are stored time-major; kernel output is
	// particle-major, so transpose while staging each variable.
	stage := func(src []float32) []float32 {
		buf := make([]float32, n*w.np)
		for p := 0; p < w.np; p++ {
			for i := 0; i < n; i++ {
				buf[i*w.np+p] = src[p*r.outSteps+s+i]
			}
		}
		return buf
	}

	begin, end := []int{w.nt}, []int{w.nt + n}
	if _, err := w.cf.Writer("time", begin, end).Write(times); err != nil {
		return fmt.Errorf("advector: writing time to %s: %v", w.paths[len(w.paths)-1], err)
	}
	begin2, end2 := []int{w.nt, 0}, []int{w.nt + n, w.np}
	if _, err := w.cf.Writer("lon", begin2, end2).Write(stage(r.lon)); err != nil {
		return fmt.Errorf("advector: writing lon to %s: %v", w.paths[len(w.paths)-1], err)
	}
	if _, err := w.cf.Writer("lat", begin2, end2).Write(stage(r.lat)); err != nil {
		return fmt.Errorf("advector: writing lat to %s: %v", w.paths[len(w.paths)-1], err)
	}
	if w.is3D {
		if _, err := w.cf.Writer("depth", begin2, end2).Write(stage(r.depth)); err != nil {
			return fmt.Errorf("advector: writing depth to %s: %v", w.paths[len(w.paths)-1], err)
		}
	}
	// Latest codes win; under the monotonicity rule a nonzero code can
	// only be replaced by a newer nonzero code. BYTE variables travel as
	// []uint8; the conversion keeps the bit pattern, so negative codes
	// survive the round trip.
	codes := make([]uint8, w.np)
	for i, c := range state.ExitCode {
		codes[i] = uint8(c)
	}
	if _, err := w.cf.Writer("exit_code", []int{0}, []int{w.np}).Write(codes); err != nil {
		return fmt.Errorf("advector: writing exit_code to %s: %v", w.paths[len(w.paths)-1], err)
	}
	w.nt += n

	// Make the file independently readable after this append.
	if err := cdf.UpdateNumRecs(w.f); err != nil {
		return fmt.Errorf("advector: finalizing records in %s: %v", w.paths[len(w.paths)-1], err)
	}
	return w.f.Sync()
}

func (w *OutputWriter) createYearFile(year int) error {
	h := cdf.NewHeader([]string{"time", "p_id"}, []int{0, w.np})
	h.AddAttribute("", "title", "Trajectories of Floating Marine Debris")
	h.AddAttribute("", "institution", "The Ocean Cleanup")
	h.AddAttribute("", "source", fmt.Sprintf("ADVECTOR Version %s", Version))

	h.AddVariable("p_id", []string{"p_id"}, []int32{0})
	h.AddVariable("release_date", []string{"p_id"}, []float64{0})
	h.AddAttribute("release_date", "units", timeUnits)
	h.AddAttribute("release_date", "calendar", "gregorian")
	h.AddVariable("exit_code", []string{"p_id"}, []uint8{0})
	h.AddAttribute("exit_code", "description", "These codes are returned by the kernel when unexpected "+
		"behavior occurs and the kernel must be terminated. Their semantic meaning is provided in the "+
		"'code_to_meaning' attribute of this variable.")
	h.AddAttribute("exit_code", "code_to_meaning", codeToMeaning())

	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", timeUnits)
	h.AddAttribute("time", "calendar", "gregorian")
	h.AddVariable("lon", []string{"time", "p_id"}, []float32{0})
	h.AddAttribute("lon", "units", "Degrees East")
	h.AddVariable("lat", []string{"time", "p_id"}, []float32{0})
	h.AddAttribute("lat", "units", "Degrees North")
	if w.is3D {
		h.AddVariable("depth", []string{"time", "p_id"}, []float32{0})
		h.AddAttribute("depth", "units", "meters")
		h.AddAttribute("depth", "positive", "up")
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("advector: defining output file for year %d: %v", year, err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("advector_output_%d.nc", year))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("advector: creating %s: %v", path, err)
	}
	cf, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return fmt.Errorf("advector: creating %s: %v", path, err)
	}
	w.currentYear = year
	w.f, w.cf = f, cf
	w.nt = 0
	w.paths = append(w.paths, path)

	if _, err := cf.Writer("p_id", []int{0}, []int{w.np}).Write(append([]int32{}, w.ids...)); err != nil {
		return fmt.Errorf("advector: writing p_id to %s: %v", path, err)
	}
	if _, err := cf.Writer("release_date", []int{0}, []int{w.np}).Write(append([]float64{}, w.releaseDates...)); err != nil {
		return fmt.Errorf("advector: writing release_date to %s: %v", path, err)
	}
	return nil
}

func (w *OutputWriter) closeCurrent() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f, w.cf = nil, nil
	if err != nil {
		return fmt.Errorf("advector: closing output file: %v", err)
	}
	return nil
}

// Close finalizes the writer. Already-written artifacts remain valid
// whether or not the run completed.
func (w *OutputWriter) Close() error {
	return w.closeCurrent()
}

// codeToMeaning renders the per-particle exit code vocabulary for the
// artifact attribute. Negative codes abort the run before anything is
// written, so only the non-negative codes appear.
func codeToMeaning() string {
	codes := make([]int, 0, len(exitCodeMeanings))
	for c := range exitCodeMeanings {
		if c >= 0 {
			codes = append(codes, int(c))
		}
	}
	sort.Ints(codes)
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%d: %s", c, exitCodeMeanings[int8(c)]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
