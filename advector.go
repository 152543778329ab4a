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

// Package advector advects populations of passive particles through
// time-varying vector fields. The advection timeline is split into
// memory-bounded chunks which are dispatched one at a time to a compute
// device, with particle state handed from each chunk to the next and
// results streamed to one NetCDF file per calendar year.
package advector

// Version gives the version of this library. It is stamped into the
// global attributes of every output file.
const Version = "1.2.0"
