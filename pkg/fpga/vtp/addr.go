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

	"github.com/pkg/errors"
)

// PageSize is the size in bytes of a mapped page.
type PageSize uint64

// Page sizes understood by the translation tables.
const (
	Page4K PageSize = 4 << 10
	Page2M PageSize = 2 << 20
)

func (s PageSize) String() string {
	switch s {
	case Page4K:
		return "4KB"
	case Page2M:
		return "2MB"
	}
	return fmt.Sprintf("%#x", uint64(s))
}

// mask returns the in-page offset bits of s.
func (s PageSize) mask() uint64 {
	return uint64(s) - 1
}

// Aligned reports whether addr is a multiple of s.
func (s PageSize) Aligned(addr uint64) bool {
	return addr&s.mask() == 0
}

// shift returns log2 of the page size.
func (s PageSize) shift() uint {
	var n uint
	for v := uint64(s); v > 1; v >>= 1 {
		n++
	}
	return n
}

// Index returns the slot index of addr at the given level, level 0 being
// the root.
func (c Config) Index(addr uint64, level int) int {
	shift := c.levelShift(level)
	return int((addr >> shift) & (uint64(c.Entries()) - 1))
}

// Indices splits addr into its per-level slot indices, root first.
func (c Config) Indices(addr uint64) []int {
	idx := make([]int, c.Levels)
	for level := range idx {
		idx[level] = c.Index(addr, level)
	}
	return idx
}

// PageOffset returns the offset of addr within its smallest page.
func (c Config) PageOffset(addr uint64) uint64 {
	return addr & (c.PageBytes() - 1)
}

// levelShift is the bit position of the lowest index bit consumed at level.
func (c Config) levelShift(level int) uint {
	return c.PageShift + (c.Levels-1-uint(level))*c.LevelBits
}

// levelSpan is the number of bytes of address space covered by one slot
// at level.
func (c Config) levelSpan(level int) uint64 {
	return 1 << c.levelShift(level)
}

// depth returns the number of levels walked to reach the terminal slot of
// a page of the given size: Levels for the base page, Levels-1 for the
// large page one radix level up. Other sizes are not supported.
func (c Config) depth(size PageSize) (int, error) {
	shift := size.shift()
	if uint64(1)<<shift != uint64(size) || shift < c.PageShift {
		return 0, errors.Wrapf(ErrUnsupportedPageSize, "%v", size)
	}
	extra := shift - c.PageShift
	if extra%c.LevelBits != 0 || extra/c.LevelBits > 1 || extra/c.LevelBits >= c.Levels {
		return 0, errors.Wrapf(ErrUnsupportedPageSize, "%v", size)
	}
	return int(c.Levels - extra/c.LevelBits), nil
}

// sizeAt is the inverse of depth: the page size of a terminal found at level.
func (c Config) sizeAt(level int) PageSize {
	return PageSize(c.levelSpan(level))
}
