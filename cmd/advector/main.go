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

// Command advector is a command-line interface for the ADVECTOR
// particle advection model.
package main

import (
	"fmt"
	"os"

	"github.com/TheOceanCleanupAlgorithms/ADVECTOR/advectorutil"
)

func main() {
	if err := advectorutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
