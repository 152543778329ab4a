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

package advectorutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/TheOceanCleanupAlgorithms/ADVECTOR"
	"github.com/lnashier/viper"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// GetStringMapString returns a map[string]string from the configuration,
// accepting either a native map or a JSON-encoded string.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	if i == nil {
		return nil, fmt.Errorf("advector: missing configuration variable %s", varName)
	}
	switch t := i.(type) {
	case map[string]string:
		return t, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(t)
	case string:
		m := make(map[string]string)
		if strings.TrimSpace(t) == "" {
			return m, nil
		}
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			return nil, fmt.Errorf("advector: parsing configuration variable %s: %v", varName, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("advector: configuration variable %s must be a map, instead it is %#v", varName, i)
	}
}

// parseDate parses d either as a plain date or as an RFC3339 timestamp.
func parseDate(d string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", d); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, d)
	if err != nil {
		return time.Time{}, fmt.Errorf("advector: StartDate must be in YYYY-MM-DD or RFC3339 format: %v", err)
	}
	return t, nil
}

// runConfigFromCfg builds the simulation configuration from cfg.
func runConfigFromCfg(cfg *viper.Viper) (advector.RunConfig, error) {
	c := advector.RunConfig{}
	startDate := cfg.GetString("StartDate")
	if startDate == "" {
		return c, fmt.Errorf("advector: StartDate is required")
	}
	start, err := parseDate(startDate)
	if err != nil {
		return c, err
	}
	scheme, err := advector.ParseAdvectionScheme(cfg.GetString("AdvectionScheme"))
	if err != nil {
		return c, err
	}
	c.StartTime = start
	c.Timestep = time.Duration(cfg.GetInt("TimestepSeconds")) * time.Second
	c.NumTimesteps = cfg.GetInt("NumTimesteps")
	c.SaveEvery = cfg.GetInt("SavePeriod")
	c.Scheme = scheme
	c.EddyDiffusivity = cfg.GetFloat64("EddyDiffusivity")
	c.WindageMultiplier = cfg.GetFloat64("WindageMultiplier")
	c.WindMixing = cfg.GetBool("WindMixingEnabled")
	c.MemoryUtilization = cfg.GetFloat64("MemoryUtilization")
	c.Seed = int64(cfg.GetInt("RandomSeed"))
	c.Verbose = cfg.GetBool("verbose")
	return c, nil
}

// Run assembles the forcing fields, particle source, compute device and
// output writer from cfg, then runs a chunked advection simulation.
func Run(cfg *viper.Viper, is3D bool) error {
	runCfg, err := runConfigFromCfg(cfg)
	if err != nil {
		return err
	}

	waterMap, err := GetStringMapString("WaterVarnameMap", cfg)
	if err != nil {
		return err
	}
	var current *advector.VectorField
	if is3D {
		current, err = advector.ReadVectorField3D(
			cfg.GetString("UWaterPath"), cfg.GetString("VWaterPath"),
			cfg.GetString("WWaterPath"), waterMap)
	} else {
		current, err = advector.ReadVectorField2D(
			cfg.GetString("UWaterPath"), cfg.GetString("VWaterPath"), waterMap)
	}
	if err != nil {
		return err
	}

	var wind *advector.VectorField
	if cfg.GetString("UWindPath") != "" {
		windMap, err := GetStringMapString("WindVarnameMap", cfg)
		if err != nil {
			return err
		}
		wind, err = advector.ReadVectorField2D(
			cfg.GetString("UWindPath"), cfg.GetString("VWindPath"), windMap)
		if err != nil {
			return err
		}
	}

	var density *advector.VectorField
	if is3D && cfg.GetString("SeawaterDensityPath") != "" {
		densityMap, err := GetStringMapString("DensityVarnameMap", cfg)
		if err != nil {
			return err
		}
		density, err = advector.ReadScalarField(
			cfg.GetString("SeawaterDensityPath"), "rho", densityMap, true)
		if err != nil {
			return err
		}
	}

	sourceMap, err := GetStringMapString("SourcefileVarnameMap", cfg)
	if err != nil {
		return err
	}
	p0, err := advector.ReadParticleSource(cfg.GetString("SourcefilePath"), sourceMap)
	if err != nil {
		return err
	}
	if !is3D {
		for i := range p0.Depth {
			p0.Depth[i] = 0
		}
	}

	dev := advector.SelectDevice(uint64(cfg.GetInt("DeviceMemoryBytes")))
	log.Infof("Using device %s with %d workers", dev.Name(), dev.Workers())

	w, err := advector.NewOutputWriter(cfg.GetString("OutputDirectory"), p0, is3D)
	if err != nil {
		return err
	}
	defer w.Close()

	timing, err := advector.RunChunkedAdvection(context.Background(), dev, current, wind, density, p0, runCfg, w)
	if err != nil {
		return err
	}
	log.Infof("Finished in %d chunk(s): buffer transfer %v, kernel execution %v",
		timing.Chunks, timing.BufferTransfer, timing.KernelExecution)
	for _, p := range w.Paths() {
		log.Infof("Wrote %s", p)
	}
	return nil
}
