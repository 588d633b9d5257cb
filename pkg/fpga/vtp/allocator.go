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

package vtp

import (
	"sync"

	"github.com/pkg/errors"
)

// Page is a block of memory visible to both the host and the accelerator.
type Page struct {
	// Virt is the host virtual address of Mem.
	Virt uint64
	// Phys is the address the accelerator uses for the same memory.
	Phys uint64
	Mem  []byte
}

// PageAllocator hands out zeroed, size aligned pages shared with the
// accelerator.
type PageAllocator interface {
	AllocPage(size PageSize) (Page, error)
}

const (
	runtimeVirtBase = 0x7f00_0000_0000
	runtimePhysBase = 0x1_0000_0000
)

// RuntimeAllocator backs pages with Go heap memory and makes up aligned
// virtual and physical addresses for them. Nothing outside the process
// can see those pages, which is all the simulation and tests need.
type RuntimeAllocator struct {
	mu       sync.Mutex
	nextVirt uint64
	nextPhys uint64
	pages    []Page
}

// NewRuntimeAllocator returns an allocator handing out addresses from the
// default simulated ranges.
func NewRuntimeAllocator() *RuntimeAllocator {
	return NewRuntimeAllocatorAt(runtimeVirtBase, runtimePhysBase)
}

// NewRuntimeAllocatorAt returns an allocator handing out addresses
// starting at the given bases.
func NewRuntimeAllocatorAt(virtBase, physBase uint64) *RuntimeAllocator {
	return &RuntimeAllocator{nextVirt: virtBase, nextPhys: physBase}
}

// AllocPage implements PageAllocator.
func (a *RuntimeAllocator) AllocPage(size PageSize) (Page, error) {
	if size == 0 || size&(size-1) != 0 {
		return Page{}, errors.Wrapf(ErrUnsupportedPageSize, "%v", size)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	virt := alignUp(a.nextVirt, uint64(size))
	phys := alignUp(a.nextPhys, uint64(size))
	a.nextVirt = virt + uint64(size)
	a.nextPhys = phys + uint64(size)

	p := Page{Virt: virt, Phys: phys, Mem: make([]byte, size)}
	a.pages = append(a.pages, p)
	return p, nil
}

// Pages returns the number of pages handed out so far.
func (a *RuntimeAllocator) Pages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pages)
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
