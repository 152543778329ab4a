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

// ConfigurationError reports a run configuration that cannot produce a
// valid simulation: a memory budget too small for even one chunk, an
// unknown advection scheme, or a save cadence that does not evenly
// divide the requested number of timesteps. It is always raised before
// any device work begins.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("advector: invalid configuration: %s", e.Reason)
}

func configErrorf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// DeviceResourceError reports a device buffer allocation failure that
// occurred despite chunking. It is fatal: retrying with a smaller chunk
// would hide a budget-estimation bug, so the run aborts instead and the
// user is advised to lower the memory utilization fraction.
type DeviceResourceError struct {
	Requested, Available uint64
}

func (e *DeviceResourceError) Error() string {
	return fmt.Sprintf("advector: device allocation of %d bytes exceeds the %d bytes available; "+
		"try lowering the memory utilization fraction", e.Requested, e.Available)
}
