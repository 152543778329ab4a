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
	"runtime"
	"sync"
)

// DefaultDeviceMemory is assumed for the compute device when no
// explicit capacity is configured.
const DefaultDeviceMemory uint64 = 2 << 30

// Device models a single compute device with a fixed global memory
// size. Buffer allocations are tracked against that capacity; a kernel
// whose buffers would exceed it fails with a DeviceResourceError
// instead of spilling. Exactly one kernel's buffers may be live at a
// time, which the allocation ledger enforces indirectly: two chunks'
// working sets would not fit inside a budget planned for one.
type Device struct {
	name          string
	globalMemSize uint64
	workers       int

	mu        sync.Mutex
	allocated uint64
	buffers   int
}

// SelectDevice returns the compute device to run on. memSize is the
// device's global memory in bytes; zero selects DefaultDeviceMemory.
func SelectDevice(memSize uint64) *Device {
	if memSize == 0 {
		memSize = DefaultDeviceMemory
	}
	return &Device{
		name:          "cpu",
		globalMemSize: memSize,
		workers:       runtime.GOMAXPROCS(0),
	}
}

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// GlobalMemSize returns the device's total memory in bytes.
func (d *Device) GlobalMemSize() uint64 { return d.globalMemSize }

// Workers returns the number of parallel workers used for kernel dispatch.
func (d *Device) Workers() int { return d.workers }

// MemoryBudget returns the number of bytes usable for buffers given a
// utilization fraction in (0, 1].
func (d *Device) MemoryBudget(utilization float64) (uint64, error) {
	if utilization <= 0 || utilization > 1 {
		return 0, configErrorf("memory utilization must be in (0, 1] (got %g)", utilization)
	}
	return uint64(float64(d.globalMemSize) * utilization), nil
}

// AllocatedBytes returns the bytes currently held by live buffers.
func (d *Device) AllocatedBytes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// LiveBuffers returns the number of currently allocated buffers.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffers
}

func (d *Device) alloc(nbytes uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.allocated+nbytes > d.globalMemSize {
		return &DeviceResourceError{Requested: nbytes, Available: d.globalMemSize - d.allocated}
	}
	d.allocated += nbytes
	d.buffers++
	return nil
}

func (d *Device) release(nbytes uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocated -= nbytes
	d.buffers--
}

// buffer is a typed device allocation. Exactly one of the element
// slices is non-nil.
type buffer struct {
	dev    *Device
	nbytes uint64
	freed  bool

	f32 []float32
	f64 []float64
	i8  []int8
}

func (d *Device) newFloat32Buffer(n int) (*buffer, error) {
	b := &buffer{dev: d, nbytes: uint64(n) * 4}
	if err := d.alloc(b.nbytes); err != nil {
		return nil, err
	}
	b.f32 = make([]float32, n)
	return b, nil
}

func (d *Device) newFloat64Buffer(n int) (*buffer, error) {
	b := &buffer{dev: d, nbytes: uint64(n) * 8}
	if err := d.alloc(b.nbytes); err != nil {
		return nil, err
	}
	b.f64 = make([]float64, n)
	return b, nil
}

func (d *Device) newInt8Buffer(n int) (*buffer, error) {
	b := &buffer{dev: d, nbytes: uint64(n)}
	if err := d.alloc(b.nbytes); err != nil {
		return nil, err
	}
	b.i8 = make([]int8, n)
	return b, nil
}

// free returns the buffer's memory to the device ledger. Freeing twice
// is a no-op.
func (b *buffer) free() {
	if b == nil || b.freed {
		return
	}
	b.freed = true
	b.f32, b.f64, b.i8 = nil, nil, nil
	b.dev.release(b.nbytes)
}
