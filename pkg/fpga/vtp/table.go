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

// nodeStore owns the nodes of one radix tree. The forward and the shadow
// trees share the walk code below and differ only in how a child slot is
// turned into a node and how new nodes are obtained.
type nodeStore interface {
	root() node
	// child resolves the value of a non-terminal slot.
	child(e entry) (node, bool)
	// grow allocates an empty node and returns it together with the slot
	// value linking to it.
	grow() (node, entry, error)
}

// insert walks key down depth levels, creating missing nodes, and stores
// value as a terminal in the last slot.
func (c Config) insert(s nodeStore, key, value uint64, depth int) error {
	n := s.root()
	for level := 0; level < depth-1; level++ {
		i := c.Index(key, level)
		e := n.get(i)
		switch {
		case !e.valid():
			next, link, err := s.grow()
			if err != nil {
				return err
			}
			// Linked only once fully registered with its store.
			n.set(i, link)
			n = next
		case e.terminal():
			return errors.Wrapf(ErrCoveredByLargePage, "%#x is inside the %v page at %#x",
				key, c.sizeAt(level), key&^(c.levelSpan(level)-1))
		default:
			n = c.mustChild(s, e)
		}
	}

	i := c.Index(key, depth-1)
	if e := n.get(i); e.valid() {
		if e.terminal() {
			return errors.Wrapf(ErrAlreadyMapped, "%#x -> %#x", key, c.addr(e))
		}
		return errors.Wrapf(ErrAlreadyMapped, "%#x has a table of smaller pages below it", key)
	}
	n.set(i, entry(value)|entryTerminal)
	return nil
}

// lookup walks key to its terminal slot. It returns the terminal and the
// level it was found at, or false if the walk hit an empty slot.
func (c Config) lookup(s nodeStore, key uint64) (entry, int, bool) {
	n := s.root()
	for level := 0; level < int(c.Levels); level++ {
		e := n.get(c.Index(key, level))
		switch {
		case !e.valid():
			return 0, level, false
		case e.terminal():
			return e, level, true
		case level == int(c.Levels)-1:
			panic(fmt.Sprintf("vtp: non-terminal slot %#x at the last level for %#x", uint64(e), key))
		}
		n = c.mustChild(s, e)
	}
	return 0, int(c.Levels), false
}

// mustChild resolves a child slot. A miss means the forward and shadow
// trees disagree, which no caller can recover from.
func (c Config) mustChild(s nodeStore, e entry) node {
	next, ok := s.child(e)
	if !ok {
		panic(fmt.Sprintf("vtp: no node registered for table page %#x", c.addr(e)))
	}
	return next
}
