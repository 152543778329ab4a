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
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testRunConfig(start time.Time, numTimesteps, saveEvery int) RunConfig {
	return RunConfig{
		StartTime:         start,
		Timestep:          time.Hour,
		NumTimesteps:      numTimesteps,
		SaveEvery:         saveEvery,
		Scheme:            SchemeEulerian,
		MemoryUtilization: 1,
		Seed:              1,
	}
}

func TestRunChunkedAdvection(t *testing.T) {
	start := time.Date(2015, time.June, 1, 0, 0, 0, 0, time.UTC)
	t0 := float64(start.Unix())
	// The current is sampled every 5 timesteps so chunks may only end
	// on those samples.
	fieldTimes := []float64{t0, t0 + 5*3600, t0 + 10*3600, t0 + 15*3600, t0 + 20*3600}
	current := uniformField(fieldTimes, 1, 0)
	p0, err := NewParticleState([]float32{0}, []float32{0}, []float64{t0})
	if err != nil {
		t.Fatal(err)
	}

	// A device sized to fit two save periods per chunk splits the
	// 20-timestep run into two chunks.
	fields := []*VectorField{current, EmptyVectorField(), EmptyVectorField()}
	budget, err := chunkFootprint(fields, t0, t0+10*3600, p0.Len(), 2, false)
	if err != nil {
		t.Fatal(err)
	}
	dev := SelectDevice(budget)

	dir := t.TempDir()
	w, err := NewOutputWriter(dir, p0, false)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testRunConfig(start, 20, 5)
	timing, err := RunChunkedAdvection(context.Background(), dev, current, nil, nil, p0, cfg, w)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if timing.Chunks != 2 {
		t.Errorf("run used %d chunks; want 2", timing.Chunks)
	}
	if dev.AllocatedBytes() != 0 {
		t.Errorf("%d bytes still allocated after the run", dev.AllocatedBytes())
	}

	paths := w.Paths()
	if len(paths) != 1 {
		t.Fatalf("wrote %d artifacts; want 1", len(paths))
	}

	// Exactly the save instants, in order, with no duplicate at the
	// chunk boundary.
	times, _ := readOutputVar(t, paths[0], "time")
	want := []float64{t0 + 5*3600, t0 + 10*3600, t0 + 15*3600, t0 + 20*3600}
	if len(times) != len(want) {
		t.Fatalf("output time axis has %d instants; want %d", len(times), len(want))
	}
	for i := range want {
		if times[i] != want[i] {
			t.Errorf("output instant %d = %g; want %g", i, times[i], want[i])
		}
	}

	// The particle drifts steadily east across the chunk boundary.
	lon, _ := readOutputVar(t, paths[0], "lon")
	for i := 1; i < len(lon); i++ {
		if lon[i] <= lon[i-1] {
			t.Errorf("lon is not increasing at save %d: %g then %g", i, lon[i-1], lon[i])
		}
	}
	perStep := 3600 / metersPerDegreeLat
	if different(lon[len(lon)-1], perStep*20, 1e-3) {
		t.Errorf("final lon = %g; want %g", lon[len(lon)-1], perStep*20)
	}

	codes, _ := readOutputVar(t, paths[0], "exit_code")
	if codes[0] != float64(ExitSuccess) {
		t.Errorf("exit code = %g; want 0", codes[0])
	}
}

func TestRunChunkedAdvectionYearRollover(t *testing.T) {
	// A run beginning in late December must produce one artifact per
	// touched calendar year.
	start := time.Date(2014, time.December, 31, 0, 0, 0, 0, time.UTC)
	t0 := float64(start.Unix())
	fieldTimes := []float64{t0, t0 + 24*3600, t0 + 48*3600}
	current := uniformField(fieldTimes, 0.1, 0)
	p0, err := NewParticleState([]float32{0}, []float32{0}, []float64{t0})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	w, err := NewOutputWriter(dir, p0, false)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testRunConfig(start, 48, 12)
	if _, err := RunChunkedAdvection(context.Background(), SelectDevice(0), current, nil, nil, p0, cfg, w); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	paths := w.Paths()
	if len(paths) != 2 {
		t.Fatalf("wrote %d artifacts; want 2: %v", len(paths), paths)
	}
	if filepath.Base(paths[0]) != "advector_output_2014.nc" || filepath.Base(paths[1]) != "advector_output_2015.nc" {
		t.Fatalf("artifact paths = %v", paths)
	}
	// Only the +12h save falls in 2014: the new year's midnight already
	// belongs to 2015.
	times, _ := readOutputVar(t, paths[0], "time")
	if len(times) != 1 || times[0] != t0+12*3600 {
		t.Errorf("2014 time axis = %v; want [%g]", times, t0+12*3600)
	}
	times, _ = readOutputVar(t, paths[1], "time")
	if len(times) != 3 {
		t.Errorf("2015 time axis has %d instants; want 3", len(times))
	}
}

func TestRunChunkedAdvectionInvalidScheme(t *testing.T) {
	start := time.Date(2015, time.June, 1, 0, 0, 0, 0, time.UTC)
	t0 := float64(start.Unix())
	current := uniformField([]float64{t0, t0 + 10*3600}, 1, 0)
	p0, err := NewParticleState([]float32{0}, []float32{0}, []float64{t0})
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	w, err := NewOutputWriter(dir, p0, false)
	if err != nil {
		t.Fatal(err)
	}

	cfg := testRunConfig(start, 10, 5)
	cfg.Scheme = AdvectionScheme(99)
	if _, err := RunChunkedAdvection(context.Background(), SelectDevice(0), current, nil, nil, p0, cfg, w); err == nil {
		t.Fatal("expected the run to abort on an invalid scheme")
	}
	w.Close()

	// The failed chunk must not have been written.
	if len(w.Paths()) != 0 {
		t.Errorf("artifacts written for an aborted run: %v", w.Paths())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d files left in the output directory after an aborted run", len(entries))
	}
}

func TestRunChunkedAdvectionBudgetTooSmall(t *testing.T) {
	start := time.Date(2015, time.June, 1, 0, 0, 0, 0, time.UTC)
	t0 := float64(start.Unix())
	current := uniformField([]float64{t0, t0 + 10*3600}, 1, 0)
	p0, err := NewParticleState([]float32{0}, []float32{0}, []float64{t0})
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewOutputWriter(t.TempDir(), p0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	cfg := testRunConfig(start, 10, 5)
	_, err = RunChunkedAdvection(context.Background(), SelectDevice(128), current, nil, nil, p0, cfg, w)
	if err == nil {
		t.Fatal("expected planning to fail on a tiny device")
	}
	if _, ok := err.(*ConfigurationError); !ok {
		t.Errorf("got %T; want ConfigurationError", err)
	}
}

func TestRunChunkedAdvectionCancellation(t *testing.T) {
	start := time.Date(2015, time.June, 1, 0, 0, 0, 0, time.UTC)
	t0 := float64(start.Unix())
	current := uniformField([]float64{t0, t0 + 10*3600}, 1, 0)
	p0, err := NewParticleState([]float32{0}, []float32{0}, []float64{t0})
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewOutputWriter(t.TempDir(), p0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := testRunConfig(start, 10, 5)
	if _, err := RunChunkedAdvection(ctx, SelectDevice(0), current, nil, nil, p0, cfg, w); err != context.Canceled {
		t.Errorf("got %v; want context.Canceled", err)
	}
}
