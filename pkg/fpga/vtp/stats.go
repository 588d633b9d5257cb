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

// Stats is a snapshot of a Context's counters.
type Stats struct {
	Mapped4K    uint64
	Mapped2M    uint64
	TablePages  int
	ShadowSlabs int
	Hits        uint64
	Misses      uint64
}

// Stats returns the current counters.
func (t *Context) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Stats{
		Mapped4K:    t.mapped[Page4K],
		Mapped2M:    t.mapped[Page2M],
		TablePages:  len(t.nodes),
		ShadowSlabs: len(t.shadow.slabs),
		Hits:        t.hits.Load(),
		Misses:      t.misses.Load(),
	}
}
