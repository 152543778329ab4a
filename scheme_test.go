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
	"testing"
)

func TestParseAdvectionScheme(t *testing.T) {
	tests := []struct {
		name string
		want AdvectionScheme
		ok   bool
	}{
		{"taylor2", SchemeTaylor2, true},
		{"eulerian", SchemeEulerian, true},
		{"rk4", 0, false},
		{"", 0, false},
	}
	for _, test := range tests {
		got, err := ParseAdvectionScheme(test.name)
		if test.ok {
			if err != nil {
				t.Errorf("ParseAdvectionScheme(%q): %v", test.name, err)
			} else if got != test.want {
				t.Errorf("ParseAdvectionScheme(%q) = %v; want %v", test.name, got, test.want)
			}
			continue
		}
		if err == nil {
			t.Errorf("ParseAdvectionScheme(%q): expected error", test.name)
		} else if _, ok := err.(*ConfigurationError); !ok {
			t.Errorf("ParseAdvectionScheme(%q): got %T; want ConfigurationError", test.name, err)
		}
	}
}

// uniformDeviceField builds a 2-D device-resident field with constant
// velocity (u, v).
func uniformDeviceField(u, v float64) *deviceField {
	lon := []float64{-4, -2, 0, 2, 4}
	lat := []float64{-4, -2, 0, 2, 4}
	times := []float64{0, 7200}
	n := len(times) * len(lon) * len(lat)
	uu := make([]float32, n)
	vv := make([]float32, n)
	for i := range uu {
		uu[i] = float32(u)
		vv[i] = float32(v)
	}
	return &deviceField{time: times, lon: lon, lat: lat, u: uu, v: vv}
}

func TestAdvectStepEastwardDrift(t *testing.T) {
	current := uniformDeviceField(1, 0) // 1 m/s eastward
	params := schemeParams{dt: 3600}
	rng := rand.New(rand.NewSource(1))

	for _, scheme := range []AdvectionScheme{SchemeEulerian, SchemeTaylor2} {
		lon, lat, depth, code := advectStep(scheme, current, &deviceField{}, &deviceField{}, params, rng, 0, 0, 0, 0, 0, 0, false)
		if code != ExitSuccess {
			t.Fatalf("%v: exit code %d", scheme, code)
		}
		// At the equator, 3600 m east.
		want := 3600 / metersPerDegreeLat
		if different(lon, want, testTolerance) {
			t.Errorf("%v: lon = %g; want %g", scheme, lon, want)
		}
		if lat != 0 || depth != 0 {
			t.Errorf("%v: lat, depth = %g, %g; want 0, 0", scheme, lat, depth)
		}
	}
}

func TestAdvectStepScaledByLatitude(t *testing.T) {
	current := uniformDeviceField(1, 0)
	params := schemeParams{dt: 3600}
	rng := rand.New(rand.NewSource(1))

	lon, _, _, code := advectStep(SchemeEulerian, current, &deviceField{}, &deviceField{}, params, rng, 0, 0, 2, 0, 0, 0, false)
	if code != ExitSuccess {
		t.Fatalf("exit code %d", code)
	}
	want := 3600 / (metersPerDegreeLat * math.Cos(2*math.Pi/180))
	if different(lon, want, testTolerance) {
		t.Errorf("lon displacement at 2N = %g; want %g", lon, want)
	}
}

func TestAdvectStepWindage(t *testing.T) {
	current := uniformDeviceField(0, 0)
	wind := uniformDeviceField(10, 0) // 10 m/s eastward wind
	params := schemeParams{dt: 3600, windageMultiplier: 0.01}
	rng := rand.New(rand.NewSource(1))

	lon, _, _, code := advectStep(SchemeEulerian, current, wind, &deviceField{}, params, rng, 0, 0, 0, 0, 0, 0, false)
	if code != ExitSuccess {
		t.Fatalf("exit code %d", code)
	}
	want := 0.01 * 10 * 3600 / metersPerDegreeLat
	if different(lon, want, testTolerance) {
		t.Errorf("windage displacement = %g; want %g", lon, want)
	}

	// A zero multiplier disables windage entirely.
	params.windageMultiplier = 0
	lon, _, _, _ = advectStep(SchemeEulerian, current, wind, &deviceField{}, params, rng, 0, 0, 0, 0, 0, 0, false)
	if lon != 0 {
		t.Errorf("displacement with windage disabled = %g; want 0", lon)
	}
}

func TestAdvectStepOutsideGridStalls(t *testing.T) {
	current := uniformDeviceField(1, 0)
	params := schemeParams{dt: 3600}
	rng := rand.New(rand.NewSource(1))

	// Far outside the field's lon/lat patch the water is treated as
	// still: the particle strands rather than failing.
	lon, lat, _, code := advectStep(SchemeEulerian, current, &deviceField{}, &deviceField{}, params, rng, 0, 90, 45, 0, 0, 0, false)
	if code != ExitSuccess {
		t.Fatalf("exit code %d", code)
	}
	if lon != 90 || lat != 45 {
		t.Errorf("stranded particle moved to (%g, %g)", lon, lat)
	}
}

func TestAdvectStepInvalidLatitude(t *testing.T) {
	// An absurd northward velocity pushes the latitude past the pole in
	// a single step.
	current := uniformDeviceField(0, 1e7)
	params := schemeParams{dt: 3600}
	rng := rand.New(rand.NewSource(1))

	lon, lat, _, code := advectStep(SchemeEulerian, current, &deviceField{}, &deviceField{}, params, rng, 0, 0, 0, 0, 0, 0, false)
	if code != ExitInvalidLatitude {
		t.Fatalf("exit code %d; want %d", code, ExitInvalidLatitude)
	}
	// The pre-step position is reported back so the particle freezes in
	// place.
	if lon != 0 || lat != 0 {
		t.Errorf("failed particle moved to (%g, %g)", lon, lat)
	}
}

func TestAdvectStepInvalidScheme(t *testing.T) {
	current := uniformDeviceField(1, 0)
	rng := rand.New(rand.NewSource(1))
	_, _, _, code := advectStep(AdvectionScheme(99), current, &deviceField{}, &deviceField{}, schemeParams{dt: 3600}, rng, 0, 0, 0, 0, 0, 0, false)
	if code != ExitInvalidScheme {
		t.Errorf("exit code %d; want %d", code, ExitInvalidScheme)
	}
}

func TestAdvectStepDepthClamped(t *testing.T) {
	lon := []float64{-4, -2, 0, 2, 4}
	lat := []float64{-4, -2, 0, 2, 4}
	depthAx := []float64{-100, 0}
	times := []float64{0, 7200}
	n := len(times) * len(lon) * len(lat) * len(depthAx)
	uu := make([]float32, n)
	vv := make([]float32, n)
	ww := make([]float32, n)
	for i := range ww {
		ww[i] = 1 // 1 m/s upward
	}
	current := &deviceField{time: times, lon: lon, lat: lat, depth: depthAx, u: uu, v: vv, w: ww}
	params := schemeParams{dt: 3600}
	rng := rand.New(rand.NewSource(1))

	_, _, depth, code := advectStep(SchemeEulerian, current, &deviceField{}, &deviceField{}, params, rng, 0, 0, 0, -1, 0, 0, true)
	if code != ExitSuccess {
		t.Fatalf("exit code %d", code)
	}
	if depth != 0 {
		t.Errorf("depth = %g; want 0 (clamped at the surface)", depth)
	}
}

func TestAdvectStepBuoyancy(t *testing.T) {
	still := uniformDeviceField(0, 0)
	params := schemeParams{dt: 3600}
	rng := rand.New(rand.NewSource(1))
	radius := 1e-4

	// A particle lighter than seawater rises at its Stokes terminal
	// velocity; with no density field the standard density applies.
	rho := 950.
	_, _, depth, code := advectStep(SchemeEulerian, still, &deviceField{}, &deviceField{}, params,
		rng, 0, 0, 0, -50, rho, radius, true)
	if code != ExitSuccess {
		t.Fatalf("exit code %d", code)
	}
	want := -50 + 2*gravity*radius*radius*(defaultSeawaterDensity-rho)/(9*seawaterDynamicViscosity)*params.dt
	if different(depth, want, testTolerance) {
		t.Errorf("rising particle depth = %g; want %g", depth, want)
	}

	// A denser particle sinks.
	_, _, depth, code = advectStep(SchemeEulerian, still, &deviceField{}, &deviceField{}, params,
		rng, 0, 0, 0, -50, 1100, radius, true)
	if code != ExitSuccess {
		t.Fatalf("exit code %d", code)
	}
	if depth >= -50 {
		t.Errorf("sinking particle depth = %g; want below -50", depth)
	}

	// Zero radius disables buoyancy entirely.
	_, _, depth, _ = advectStep(SchemeEulerian, still, &deviceField{}, &deviceField{}, params,
		rng, 0, 0, 0, -50, rho, 0, true)
	if depth != -50 {
		t.Errorf("depth with zero radius = %g; want -50", depth)
	}
}

func TestBuoyancySamplesDensityField(t *testing.T) {
	// The seawater density comes from the density field where one is
	// supplied: a particle matching the field's density is neutrally
	// buoyant even though it differs from the standard density.
	density := uniformDeviceField(1000, 0)
	if w := buoyancyVerticalVelocity(density, 0, 0, 0, -50, 1000, 1e-4); w != 0 {
		t.Errorf("vertical velocity at matched density = %g; want 0", w)
	}
	if w := buoyancyVerticalVelocity(density, 0, 0, 0, -50, 1030, 1e-4); w >= 0 {
		t.Errorf("vertical velocity of a particle denser than the field = %g; want negative", w)
	}
	// Outside the field's grid the standard density applies.
	if w := buoyancyVerticalVelocity(density, 0, 90, 45, -50, defaultSeawaterDensity, 1e-4); w != 0 {
		t.Errorf("vertical velocity outside the grid = %g; want 0", w)
	}
}

func TestWrapLon(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{179, 179},
		{180, -180},
		{181, -179},
		{-180, -180},
		{360, 0},
		{-181, 179},
	}
	for _, test := range tests {
		if got := wrapLon(test.in); different(got, test.want, testTolerance) {
			t.Errorf("wrapLon(%g) = %g; want %g", test.in, got, test.want)
		}
	}
}

func TestDeviceFieldSample(t *testing.T) {
	// A field varying linearly in longitude checks the bilinear
	// interpolation weights.
	lon := []float64{0, 2, 4}
	lat := []float64{0, 2}
	times := []float64{0, 100}
	u := make([]float32, len(times)*len(lon)*len(lat))
	for it := 0; it < len(times); it++ {
		for ix := 0; ix < len(lon); ix++ {
			for iy := 0; iy < len(lat); iy++ {
				u[(it*len(lon)+ix)*len(lat)+iy] = float32(lon[ix])
			}
		}
	}
	f := &deviceField{time: times, lon: lon, lat: lat, u: u, v: make([]float32, len(u))}

	got, _, _, ok := f.sample(50, 1, 1, 0)
	if !ok {
		t.Fatal("sample inside the grid reported not ok")
	}
	if different(got, 1, testTolerance) {
		t.Errorf("u(lon=1) = %g; want 1", got)
	}
	got, _, _, ok = f.sample(50, 3, 0, 0)
	if !ok || different(got, 3, testTolerance) {
		t.Errorf("u(lon=3) = %g, %v; want 3", got, ok)
	}
	if _, _, _, ok := f.sample(50, 5, 0, 0); ok {
		t.Error("sample outside the grid reported ok")
	}
}
