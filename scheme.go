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
)

// AdvectionScheme selects the numerical integration method used to
// advance particle positions. The set of schemes is closed and known at
// build time; the selector is chosen once at configuration time.
type AdvectionScheme int

const (
	// SchemeEulerian is the forward Euler method.
	SchemeEulerian AdvectionScheme = iota
	// SchemeTaylor2 is a second-order scheme after Black and Gay
	// (1990), which improves adherence to circular streamlines over a
	// first-order scheme.
	SchemeTaylor2
)

var schemeNames = map[string]AdvectionScheme{
	"eulerian": SchemeEulerian,
	"taylor2":  SchemeTaylor2,
}

// ParseAdvectionScheme converts a configuration string to a scheme
// selector. Unknown names are a ConfigurationError.
func ParseAdvectionScheme(name string) (AdvectionScheme, error) {
	s, ok := schemeNames[name]
	if !ok {
		return 0, configErrorf("unknown advection scheme %q; must be one of \"taylor2\", \"eulerian\"", name)
	}
	return s, nil
}

func (s AdvectionScheme) String() string {
	for name, v := range schemeNames {
		if v == s {
			return name
		}
	}
	return "invalid"
}

func (s AdvectionScheme) valid() bool {
	return s == SchemeEulerian || s == SchemeTaylor2
}

const (
	metersPerDegreeLat = 111120.

	gravity                  = 9.81    // m/s2
	seawaterDynamicViscosity = 1.19e-3 // kg/(m s)
	defaultSeawaterDensity   = 1025.   // kg/m3
)

// deviceField is a forcing field as it exists in device buffers: axes
// as 8-byte floats and flattened 4-byte component values with shape
// (time, lon, lat[, depth]).
type deviceField struct {
	time, lon, lat, depth []float64
	u, v, w               []float32
}

func (f *deviceField) empty() bool { return len(f.time) == 0 }

// sample interpolates the field at an instant and position: linear in
// time and depth, bilinear in lon/lat. It reports ok=false outside the
// grid.
func (f *deviceField) sample(t, lon, lat, depth float64) (u, v, w float64, ok bool) {
	if f.empty() {
		return 0, 0, 0, true
	}
	it, ft, ok := axisWeight(f.time, t)
	if !ok {
		return 0, 0, 0, false
	}
	ix, fx, ok := axisWeight(f.lon, lon)
	if !ok {
		return 0, 0, 0, false
	}
	iy, fy, ok := axisWeight(f.lat, lat)
	if !ok {
		return 0, 0, 0, false
	}
	iz, fz := 0, 0.
	if len(f.depth) > 0 {
		iz, fz, ok = axisWeight(f.depth, depth)
		if !ok {
			return 0, 0, 0, false
		}
	}
	u = f.interpOne(f.u, it, ix, iy, iz, ft, fx, fy, fz)
	v = f.interpOne(f.v, it, ix, iy, iz, ft, fx, fy, fz)
	if f.w != nil {
		w = f.interpOne(f.w, it, ix, iy, iz, ft, fx, fy, fz)
	}
	return u, v, w, true
}

func (f *deviceField) interpOne(vals []float32, it, ix, iy, iz int, ft, fx, fy, fz float64) float64 {
	nLon, nLat := len(f.lon), len(f.lat)
	nDepth := len(f.depth)
	if nDepth == 0 {
		nDepth = 1
	}
	at := func(it, ix, iy, iz int) float64 {
		return float64(vals[((it*nLon+ix)*nLat+iy)*nDepth+iz])
	}
	interpSpace := func(it, iz int) float64 {
		v00 := at(it, ix, iy, iz)
		v10 := at(it, clampIdx(ix+1, nLon), iy, iz)
		v01 := at(it, ix, clampIdx(iy+1, nLat), iz)
		v11 := at(it, clampIdx(ix+1, nLon), clampIdx(iy+1, nLat), iz)
		return lerp(lerp(v00, v10, fx), lerp(v01, v11, fx), fy)
	}
	interpDepth := func(it int) float64 {
		if len(f.depth) < 2 {
			return interpSpace(it, iz)
		}
		return lerp(interpSpace(it, iz), interpSpace(it, clampIdx(iz+1, len(f.depth))), fz)
	}
	if len(f.time) < 2 {
		return interpDepth(it)
	}
	return lerp(interpDepth(it), interpDepth(clampIdx(it+1, len(f.time))), ft)
}

func clampIdx(i, n int) int {
	if i > n-1 {
		return n - 1
	}
	return i
}

// schemeParams holds the fixed scalar parameters of the integration,
// passed through opaquely from the configuration layer.
type schemeParams struct {
	dt                float64 // seconds
	eddyDiffusivity   float64 // m2/s
	windageMultiplier float64 // 0 disables windage
	windMixing        bool
}

// advectStep advances one particle by one timestep and returns its new
// position along with an exit code. Velocities sampled outside the
// field grid are treated as zero (a stranded particle stalls rather
// than failing); a position that becomes undefined is NULL_LOCATION
// and a latitude outside [-90, 90] is INVALID_LATITUDE. rho and radius
// are the particle's density and radius; a zero radius disables
// buoyancy.
func advectStep(scheme AdvectionScheme, current, wind, density *deviceField, p schemeParams,
	rng *rand.Rand, t, lon, lat, depth, rho, radius float64, is3D bool) (newLon, newLat, newDepth float64, code int8) {

	var u, v, w float64
	switch scheme {
	case SchemeEulerian:
		u, v, w = velocityAt(current, t, lon, lat, depth)
	case SchemeTaylor2:
		// Heun's predictor-corrector: evaluate at the step start, then
		// again at the predicted endpoint, and average.
		u1, v1, w1 := velocityAt(current, t, lon, lat, depth)
		pLon, pLat, pDepth := displace(lon, lat, depth, u1*p.dt, v1*p.dt, w1*p.dt)
		u2, v2, w2 := velocityAt(current, t+p.dt, pLon, pLat, pDepth)
		u, v, w = (u1+u2)/2, (v1+v2)/2, (w1+w2)/2
	default:
		return lon, lat, depth, ExitInvalidScheme
	}

	if p.windageMultiplier > 0 && !wind.empty() {
		// Windage samples the 10-meter wind at the surface.
		wu, wv, _, ok := wind.sample(t, lon, lat, 0)
		if ok {
			u += wu * p.windageMultiplier
			v += wv * p.windageMultiplier
		}
	}

	dx, dy, dz := u*p.dt, v*p.dt, w*p.dt
	if p.eddyDiffusivity > 0 {
		// Random walk with step variance 2*K*dt.
		amp := math.Sqrt(2 * p.eddyDiffusivity * p.dt)
		dx += amp * rng.NormFloat64()
		dy += amp * rng.NormFloat64()
	}
	if is3D && p.windMixing && !wind.empty() {
		// Near-surface turbulent wind mixing: vertical displacement
		// scaled by the local wind speed, strongest at the surface.
		wu, wv, _, ok := wind.sample(t, lon, lat, 0)
		if ok {
			speed := math.Hypot(wu, wv)
			dz += 0.01 * speed * math.Exp(depth/10) * rng.NormFloat64() * math.Sqrt(p.dt)
		}
	}
	if is3D && radius > 0 && rho > 0 {
		dz += buoyancyVerticalVelocity(density, t, lon, lat, depth, rho, radius) * p.dt
	}

	newLon, newLat, newDepth = displace(lon, lat, depth, dx, dy, dz)
	if !is3D {
		newDepth = 0
	} else if newDepth > 0 {
		newDepth = 0 // particles cannot leave the water surface
	}
	switch {
	case math.IsNaN(newLon) || math.IsNaN(newLat) || math.IsNaN(newDepth) ||
		math.IsInf(newLon, 0) || math.IsInf(newLat, 0) || math.IsInf(newDepth, 0):
		return lon, lat, depth, ExitNullLocation
	case newLat < -90 || newLat > 90:
		return lon, lat, depth, ExitInvalidLatitude
	}
	return newLon, newLat, newDepth, ExitSuccess
}

// buoyancyVerticalVelocity is the Stokes terminal velocity of a small
// sphere, positive (rising) when the particle is lighter than the
// surrounding seawater. The seawater density is sampled from the
// density field where available; outside the grid, or when no density
// field was supplied, a standard seawater density is assumed.
func buoyancyVerticalVelocity(density *deviceField, t, lon, lat, depth, rho, radius float64) float64 {
	rhoSW := defaultSeawaterDensity
	if !density.empty() {
		if s, _, _, ok := density.sample(t, lon, lat, depth); ok && !math.IsNaN(s) {
			rhoSW = s
		}
	}
	return 2 * gravity * radius * radius * (rhoSW - rho) / (9 * seawaterDynamicViscosity)
}

// velocityAt samples the current, treating out-of-grid positions and
// masked (NaN) cells as still water.
func velocityAt(current *deviceField, t, lon, lat, depth float64) (u, v, w float64) {
	u, v, w, ok := current.sample(t, lon, lat, depth)
	if !ok || math.IsNaN(u) || math.IsNaN(v) || math.IsNaN(w) {
		return 0, 0, 0
	}
	return u, v, w
}

// displace moves a position by a displacement in meters, converting to
// degrees at the local latitude and wrapping longitude to [-180, 180).
func displace(lon, lat, depth, dx, dy, dz float64) (float64, float64, float64) {
	newLat := lat + dy/metersPerDegreeLat
	mPerDegLon := metersPerDegreeLat * math.Cos(lat*math.Pi/180)
	newLon := lon
	if mPerDegLon != 0 {
		newLon = wrapLon(lon + dx/mPerDegLon)
	}
	return newLon, newLat, depth + dz
}

func wrapLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
