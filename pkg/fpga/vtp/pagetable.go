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

// Package vtp maintains the virtual to physical translation tables walked
// by an FPGA accelerator, so the accelerator can dereference host virtual
// addresses.
//
// A Context owns two radix trees of identical shape. The forward tree
// lives in pages shared with the accelerator and holds only physical
// addresses: child pointers and translations. The shadow tree is private
// to the host and maps the physical address of every forward node back to
// the node itself, which is how software follows the forward tree's child
// pointers.
package vtp

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Options configure a Context.
type Options struct {
	// Config is the table layout. The zero value selects DefaultConfig.
	Config Config
	// Logger receives allocation and CSR traces. The zero value selects
	// klog.Background().
	Logger logr.Logger
}

// Context is one pair of forward and shadow translation trees.
//
// Map takes the write lock; Translate, Walk and Dump take the read lock.
// Callers still have to invalidate the accelerator's translation cache
// after Map before the accelerator may rely on the new mapping.
type Context struct {
	cfg   Config
	log   logr.Logger
	alloc PageAllocator

	mu       sync.RWMutex
	nodes    []*pageNode
	shadow   *shadowTable
	rootPhys uint64
	mapped   map[PageSize]uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New allocates the root of both trees.
func New(alloc PageAllocator, opts Options) (*Context, error) {
	cfg := opts.Config
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log.GetSink() == nil {
		log = klog.Background()
	}

	t := &Context{
		cfg:    cfg,
		log:    log.WithName("vtp"),
		alloc:  alloc,
		shadow: newShadowTable(cfg),
		mapped: make(map[PageSize]uint64),
	}
	root, err := t.newNode()
	if err != nil {
		return nil, errors.Wrap(err, "unable to allocate root table")
	}
	t.rootPhys = root.page.Phys
	t.log.V(2).Info("page table initialized", "root", fmt.Sprintf("%#x", t.rootPhys))
	return t, nil
}

// Config returns the layout in use.
func (t *Context) Config() Config {
	return t.cfg
}

// RootPhysical returns the physical address of the forward root node. It
// never changes for the lifetime of the Context.
func (t *Context) RootPhysical() uint64 {
	return t.rootPhys
}

// Map records that the virtual page va is backed by the physical page pa.
// Both must be aligned to size; a misaligned address is a caller bug and
// panics.
//
// Nodes created on the way down stay in the tree when Map fails.
func (t *Context) Map(va, pa uint64, size PageSize) error {
	depth, err := t.cfg.depth(size)
	if err != nil {
		return err
	}
	if !size.Aligned(va) || !size.Aligned(pa) {
		panic(fmt.Sprintf("vtp: Map(%#x, %#x) not aligned to %v", va, pa, size))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.cfg.insert((*forwardTable)(t), va, pa, depth); err != nil {
		t.log.V(2).Info("insert rejected", "va", fmt.Sprintf("%#x", va), "err", err)
		return err
	}
	t.mapped[size]++
	return nil
}

// MapRegion maps length bytes starting at va to the physically contiguous
// range at pa in pages of the given size. It stops at the first failure
// and returns the number of pages mapped before it.
func (t *Context) MapRegion(va, pa, length uint64, size PageSize) (int, error) {
	var n int
	for off := uint64(0); off < length; off += uint64(size) {
		if err := t.Map(va+off, pa+off, size); err != nil {
			return n, errors.Wrapf(err, "mapping page %d of region %#x", n, va)
		}
		n++
	}
	return n, nil
}

// Translate returns the physical address backing va, or false if no page
// containing va is mapped.
func (t *Context) Translate(va uint64) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pa, ok := t.translate(va)
	if ok {
		t.hits.Add(1)
	} else {
		t.misses.Add(1)
	}
	return pa, ok
}

func (t *Context) translate(va uint64) (uint64, bool) {
	e, level, ok := t.cfg.lookup((*forwardTable)(t), va)
	if !ok {
		return 0, false
	}
	return t.cfg.addr(e) | va&(t.cfg.levelSpan(level)-1), true
}

// NodeVirtual returns the host virtual address of the forward node page
// at physical address pa.
func (t *Context) NodeVirtual(pa uint64) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.shadow.resolve(pa)
	if !ok || h >= len(t.nodes) {
		return 0, false
	}
	return t.nodes[h].page.Virt, true
}

// newNode allocates a forward node page and registers it in the shadow
// tree. The returned node is not linked into the forward tree yet.
func (t *Context) newNode() (*pageNode, error) {
	page, err := t.alloc.AllocPage(Page4K)
	if err != nil {
		return nil, errors.Wrap(err, "unable to allocate table page")
	}
	switch {
	case page.Phys == 0:
		return nil, errors.Errorf("allocator returned table page %#x without a physical address", page.Virt)
	case !Page4K.Aligned(page.Phys):
		return nil, errors.Errorf("allocator returned unaligned table page at physical %#x", page.Phys)
	case t.cfg.AddrBits() < 64 && page.Phys>>t.cfg.AddrBits() != 0:
		return nil, errors.Errorf("allocator returned table page at physical %#x beyond the %d-bit address space", page.Phys, t.cfg.AddrBits())
	case uint64(len(page.Mem)) < t.cfg.NodeBytes():
		return nil, errors.Errorf("allocator returned a %d byte table page, need %d", len(page.Mem), t.cfg.NodeBytes())
	}

	n := &pageNode{page: page}
	handle := len(t.nodes)
	if err := t.shadow.register(page.Phys, handle); err != nil {
		return nil, errors.Wrapf(err, "table page at physical %#x", page.Phys)
	}
	t.nodes = append(t.nodes, n)
	t.log.V(4).Info("allocated table page", "handle", handle,
		"virt", fmt.Sprintf("%#x", page.Virt), "phys", fmt.Sprintf("%#x", page.Phys))
	return n, nil
}

// forwardTable is the nodeStore view of the shared tree.
type forwardTable Context

func (f *forwardTable) root() node {
	return f.nodes[0]
}

func (f *forwardTable) child(e entry) (node, bool) {
	h, ok := f.shadow.resolve(f.cfg.addr(e))
	if !ok || h >= len(f.nodes) {
		return nil, false
	}
	return f.nodes[h], true
}

func (f *forwardTable) grow() (node, entry, error) {
	n, err := (*Context)(f).newNode()
	if err != nil {
		return nil, 0, err
	}
	return n, entry(n.page.Phys), nil
}
