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

// Package advectorutil holds the configuration surface and command
// glue for the advector command-line interface.
package advectorutil

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/TheOceanCleanupAlgorithms/ADVECTOR"
	"github.com/lnashier/viper"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to ADVECTOR.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose enables detailed information about kernel execution,
              including buffer sizes and per-chunk timing.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "OutputDirectory",
			usage: `
              OutputDirectory is the directory which will be populated with one
              outputfile per calendar year of the advection timeline. Existing
              files in this directory may be overwritten.`,
			defaultVal: "output",
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "SourcefilePath",
			usage: `
              SourcefilePath is the path to the particle sourcefile NetCDF file,
              containing per-particle lon, lat and release_date (plus depth for
              3-D runs).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "SourcefileVarnameMap",
			usage: `
              SourcefileVarnameMap maps variable names in the sourcefile to the
              standard names, e.g. {"longitude": "lon", "particle_release_time": "release_date"}.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "UWaterPath",
			usage: `
              UWaterPath is a wildcard path to the zonal current files. Sorting
              the matched paths by name must equal sorting them in time.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "VWaterPath",
			usage: `
              VWaterPath is a wildcard path to the meridional current files; see UWaterPath.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "WWaterPath",
			usage: `
              WWaterPath is a wildcard path to the vertical current files; see UWaterPath.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{run3DCmd.PersistentFlags()},
		},
		{
			name: "WaterVarnameMap",
			usage: `
              WaterVarnameMap maps variable names in the current files to the
              standard names, e.g. {"uo": "U", "vo": "V"}.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "UWindPath",
			usage: `
              UWindPath is a wildcard path to the zonal 10-meter wind files.
              Wind is optional; omit it to disable drift due to wind.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "VWindPath",
			usage: `
              VWindPath is a wildcard path to the meridional 10-meter wind files; see UWindPath.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "WindVarnameMap",
			usage: `
              WindVarnameMap maps variable names in the wind files to the standard names.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "SeawaterDensityPath",
			usage: `
              SeawaterDensityPath is a wildcard path to the seawater density files.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{run3DCmd.PersistentFlags()},
		},
		{
			name: "DensityVarnameMap",
			usage: `
              DensityVarnameMap maps variable names in the density files to the standard names.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{run3DCmd.PersistentFlags()},
		},
		{
			name: "StartDate",
			usage: `
              StartDate is the start of the advection timeseries, in
              "YYYY-MM-DD" or RFC3339 format. Particles scheduled for release
              before this date are released at this date.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "TimestepSeconds",
			usage: `
              TimestepSeconds is the duration of each advection timestep.`,
			defaultVal: 3600,
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "NumTimesteps",
			usage: `
              NumTimesteps is the length of the advection timeseries.`,
			defaultVal: 24,
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "SavePeriod",
			usage: `
              SavePeriod controls how often to write output: particle state is
              saved every SavePeriod timesteps. It must evenly divide
              NumTimesteps.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "AdvectionScheme",
			usage: `
              AdvectionScheme is one of {"taylor2", "eulerian"}. "taylor2" is a
              second-order scheme as described in Black/Gay 1990; "eulerian" is
              the forward Euler method.`,
			defaultVal: "taylor2",
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "EddyDiffusivity",
			usage: `
              EddyDiffusivity [m2/s] scales the random-walk component of
              particle motion; its value is model dependent.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "WindageMultiplier",
			usage: `
              WindageMultiplier multiplies the fraction of the 10-meter wind
              speed applied to particles. Ignored when no wind files are given.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "WindMixingEnabled",
			usage: `
              WindMixingEnabled enables near-surface turbulent wind mixing for
              3-D runs.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{run3DCmd.PersistentFlags()},
		},
		{
			name: "MemoryUtilization",
			usage: `
              MemoryUtilization defines what fraction of the compute device
              memory is assumed usable, in (0, 1]. When the device memory is
              shared with the host, don't set this above 0.5; on a dedicated
              compute device it can be set close to 1.`,
			defaultVal: 0.5,
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "DeviceMemoryBytes",
			usage: `
              DeviceMemoryBytes overrides the assumed global memory size of the
              compute device. Zero selects the default.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
		{
			name: "RandomSeed",
			usage: `
              RandomSeed seeds the eddy-diffusivity random walk, making runs
              reproducible.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{run2DCmd.PersistentFlags(), run3DCmd.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ADVECTOR")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(run2DCmd)
	Root.AddCommand(run3DCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("advector: problem reading configuration file: %v", err)
		}
	}
	if Cfg.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "advector",
	Short: "A chunked particle advection engine.",
	Long: `ADVECTOR advects populations of passive particles through time-varying
ocean current and wind fields, splitting the problem into chunks that fit
within the memory of a single compute device and streaming trajectories to
one NetCDF file per calendar year.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'ADVECTOR_var' where 'var'
is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ADVECTOR.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ADVECTOR v%s\n", advector.Version)
	},
	DisableAutoGenTag: true,
}

var run2DCmd = &cobra.Command{
	Use:   "run2d",
	Short: "Run a 2-D surface advection simulation.",
	Long: `run2d advects particles at the ocean surface through 2-D current
and (optionally) wind fields, writing one outputfile per calendar year.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(Cfg, false)
	},
	DisableAutoGenTag: true,
}

var run3DCmd = &cobra.Command{
	Use:   "run3d",
	Short: "Run a 3-D advection simulation.",
	Long: `run3d advects particles through 3-D current fields with optional
wind forcing and seawater density, writing one outputfile per calendar year.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Run(Cfg, true)
	},
	DisableAutoGenTag: true,
}
