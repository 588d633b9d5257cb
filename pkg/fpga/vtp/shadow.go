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

// shadowTable is the host-private PA -> node tree. It has the same shape
// as the forward tree and is keyed by the physical address of each
// forward node page, so a child pointer read from the forward tree can be
// walked here with the same index split.
//
// Its own nodes are slabs in an arena. Child slots and terminal slots both
// hold handles, encoded as (handle+1)<<PageShift so they stay page aligned
// and never collide with the empty value.
type shadowTable struct {
	cfg   Config
	slabs []slabNode
}

func newShadowTable(cfg Config) *shadowTable {
	s := &shadowTable{cfg: cfg}
	s.grow()
	return s
}

func (s *shadowTable) encode(handle int) entry {
	return entry(uint64(handle+1) << s.cfg.PageShift)
}

func (s *shadowTable) decode(e entry) (int, bool) {
	h := s.cfg.addr(e) >> s.cfg.PageShift
	if h == 0 {
		return 0, false
	}
	return int(h - 1), true
}

func (s *shadowTable) root() node {
	return s.slabs[0]
}

func (s *shadowTable) child(e entry) (node, bool) {
	h, ok := s.decode(e)
	if !ok || h >= len(s.slabs) {
		return nil, false
	}
	return s.slabs[h], true
}

func (s *shadowTable) grow() (node, entry, error) {
	n := make(slabNode, s.cfg.Entries())
	s.slabs = append(s.slabs, n)
	return n, s.encode(len(s.slabs) - 1), nil
}

// register records that the forward node with the given handle lives at
// physical address pa.
func (s *shadowTable) register(pa uint64, handle int) error {
	return s.cfg.insert(s, pa, uint64(s.encode(handle)), int(s.cfg.Levels))
}

// resolve is the PA -> forward node handle lookup.
func (s *shadowTable) resolve(pa uint64) (int, bool) {
	e, _, ok := s.cfg.lookup(s, pa)
	if !ok {
		return 0, false
	}
	return s.decode(e)
}
