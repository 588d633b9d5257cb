// Copyright 2019 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build linux
// +build linux

package dfl

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/intel/intel-fpga-vtp/pkg/fpga/vtp"
)

// log2 of a 2MB huge page, encoded in the mmap flags.
const hugePage2MShift = 21

// DMAMapper makes host memory reachable by the accelerator. *Port is one.
type DMAMapper interface {
	DMAMap(addr, length uint64) (uint64, error)
	DMAUnmap(iova uint64) error
}

type dmaBuffer struct {
	mem  []byte
	iova uint64
}

// Allocator hands out anonymous, DMA mapped pages. 2MB pages
// come from the hugetlb pool. The driver pins pages while they are DMA
// mapped. It implements vtp.PageAllocator.
type Allocator struct {
	mapper DMAMapper

	mu      sync.Mutex
	buffers []dmaBuffer
}

// NewAllocator returns an allocator mapping its pages through mapper.
func NewAllocator(mapper DMAMapper) *Allocator {
	return &Allocator{mapper: mapper}
}

// AllocPage implements vtp.PageAllocator.
func (a *Allocator) AllocPage(size vtp.PageSize) (vtp.Page, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS | unix.MAP_POPULATE
	switch size {
	case vtp.Page4K:
	case vtp.Page2M:
		flags |= unix.MAP_HUGETLB | hugePage2MShift<<unix.MAP_HUGE_SHIFT
	default:
		return vtp.Page{}, errors.Wrapf(vtp.ErrUnsupportedPageSize, "%v", size)
	}

	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return vtp.Page{}, errors.Wrapf(err, "unable to allocate %v page", size)
	}
	virt := uint64(uintptr(unsafe.Pointer(&mem[0])))
	if !size.Aligned(virt) {
		unix.Munmap(mem)
		return vtp.Page{}, errors.Errorf("%v page at %#x is not aligned", size, virt)
	}

	iova, err := a.mapper.DMAMap(virt, uint64(size))
	if err != nil {
		unix.Munmap(mem)
		return vtp.Page{}, err
	}
	if !size.Aligned(iova) {
		a.mapper.DMAUnmap(iova)
		unix.Munmap(mem)
		return vtp.Page{}, errors.Errorf("%v page at %#x got unaligned IOVA %#x", size, virt, iova)
	}

	a.mu.Lock()
	a.buffers = append(a.buffers, dmaBuffer{mem: mem, iova: iova})
	a.mu.Unlock()

	return vtp.Page{Virt: virt, Phys: iova, Mem: mem}, nil
}

// Pages returns the number of pages currently handed out.
func (a *Allocator) Pages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}

// Close unmaps every page handed out. Pages must not be used afterwards.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var first error
	for _, b := range a.buffers {
		if err := a.mapper.DMAUnmap(b.iova); err != nil && first == nil {
			first = err
		}
		if err := unix.Munmap(b.mem); err != nil && first == nil {
			first = errors.Wrapf(err, "unable to unmap IOVA %#x", b.iova)
		}
	}
	a.buffers = nil
	return first
}
