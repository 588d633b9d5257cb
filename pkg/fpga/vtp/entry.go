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

import "encoding/binary"

// entry is the 64-bit value held by a table slot.
//
// Zero means empty. Any other value carries a page aligned address; the
// page offset bits are free for flags. entryTerminal marks a translation,
// its absence marks a pointer to the next level node.
type entry uint64

const entryTerminal entry = 1 << 0

func (e entry) valid() bool {
	return e != 0
}

func (e entry) terminal() bool {
	return e&entryTerminal != 0
}

// addr strips the flag bits.
func (c Config) addr(e entry) uint64 {
	return uint64(e) &^ (c.PageBytes() - 1)
}

// node is a view over one table node of Config.Entries slots.
type node interface {
	get(i int) entry
	set(i int, e entry)
}

// pageNode is a node stored in memory shared with the accelerator. Slots
// are little-endian so the bytes are exactly what the walker reads.
type pageNode struct {
	page Page
}

func (n *pageNode) get(i int) entry {
	return entry(binary.LittleEndian.Uint64(n.page.Mem[i*8:]))
}

func (n *pageNode) set(i int, e entry) {
	binary.LittleEndian.PutUint64(n.page.Mem[i*8:], uint64(e))
}

// slabNode is a host-private node.
type slabNode []uint64

func (n slabNode) get(i int) entry {
	return entry(n[i])
}

func (n slabNode) set(i int, e entry) {
	n[i] = uint64(e)
}
