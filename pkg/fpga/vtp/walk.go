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
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Mapping is one terminal of the forward tree.
type Mapping struct {
	Virt uint64
	Phys uint64
	Size PageSize
}

// Walk calls fn for every mapped page in ascending virtual address order.
// The walk stops at the first error returned by fn.
func (t *Context) Walk(fn func(Mapping) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.walk(t.nodes[0], 0, 0, fn)
}

func (t *Context) walk(n node, level int, base uint64, fn func(Mapping) error) error {
	f := (*forwardTable)(t)
	for i := 0; i < t.cfg.Entries(); i++ {
		e := n.get(i)
		if !e.valid() {
			continue
		}
		va := base | uint64(i)<<t.cfg.levelShift(level)
		if e.terminal() {
			if err := fn(Mapping{Virt: va, Phys: t.cfg.addr(e), Size: t.cfg.sizeAt(level)}); err != nil {
				return err
			}
			continue
		}
		if err := t.walk(t.cfg.mustChild(f, e), level+1, va, fn); err != nil {
			return err
		}
	}
	return nil
}

// Mappings returns every mapped page in ascending virtual address order.
func (t *Context) Mappings() []Mapping {
	var m []Mapping
	_ = t.Walk(func(p Mapping) error {
		m = append(m, p)
		return nil
	})
	return m
}

// Dump prints every mapped page to w and checks that each one translates
// back to the physical address stored in its leaf. It returns the number
// of leaves visited.
func (t *Context) Dump(w io.Writer) (int, error) {
	var n int
	err := t.Walk(func(m Mapping) error {
		n++
		if _, err := fmt.Fprintf(w, "  VA 0x%012x -> PA 0x%012x (%v)\n", m.Virt, m.Phys, m.Size); err != nil {
			return errors.WithStack(err)
		}
		pa, ok := t.translate(m.Virt)
		if !ok || pa != m.Phys {
			return errors.Wrapf(ErrSelfCheck, "VA %#x: leaf holds %#x, translation gives %#x (found %v)", m.Virt, m.Phys, pa, ok)
		}
		return nil
	})
	return n, err
}
