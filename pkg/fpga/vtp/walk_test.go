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
	"bytes"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// randomMappings returns n non-overlapping mappings. Each one gets its
// own 2MB region of virtual and physical space, mapped either by a 2MB
// page or by a 4KB page at a random offset inside it.
func randomMappings(r *rand.Rand, n int) []Mapping {
	used := map[uint64]bool{}
	var m []Mapping
	for len(m) < n {
		region := uint64(r.Int63n(1<<27)) << 21 // 48-bit space
		if used[region] {
			continue
		}
		used[region] = true
		pa := uint64(len(m)+1) << 21
		if r.Intn(2) == 0 {
			m = append(m, Mapping{Virt: region, Phys: 0x100_0000_0000 + pa, Size: Page2M})
			continue
		}
		off := uint64(r.Intn(512)) << 12
		m = append(m, Mapping{Virt: region + off, Phys: 0x200_0000_0000 + pa + off, Size: Page4K})
	}
	return m
}

func TestWalkVisitsEveryMapping(t *testing.T) {
	ctx := newTestContext(t)
	want := randomMappings(rand.New(rand.NewSource(1)), 200)
	for _, m := range want {
		mustMap(t, ctx, m.Virt, m.Phys, m.Size)
	}

	sort.Slice(want, func(i, j int) bool { return want[i].Virt < want[j].Virt })
	if diff := cmp.Diff(want, ctx.Mappings()); diff != "" {
		t.Errorf("unexpected mappings (-want +got):\n%s", diff)
	}

	for _, m := range want {
		expectTranslation(t, ctx, m.Virt, m.Phys)
		expectTranslation(t, ctx, m.Virt+uint64(m.Size)-1, m.Phys+uint64(m.Size)-1)
		if m.Size == Page4K {
			expectMiss(t, ctx, m.Virt^0x1000)
		}
	}
}

func TestWalkStopsOnError(t *testing.T) {
	ctx := newTestContext(t)
	for _, m := range randomMappings(rand.New(rand.NewSource(2)), 10) {
		mustMap(t, ctx, m.Virt, m.Phys, m.Size)
	}
	stop := errors.New("stop")
	var n int
	err := ctx.Walk(func(Mapping) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	if err != stop || n != 3 {
		t.Errorf("expected walk to stop after 3 leaves with the callback error, got %d, %v", n, err)
	}
}

func TestDump(t *testing.T) {
	ctx := newTestContext(t)
	mustMap(t, ctx, 0x40_0000, 0x10_0000_0000, Page4K)
	mustMap(t, ctx, 0x40_1000, 0x10_0000_1000, Page4K)
	mustMap(t, ctx, 0x60_0000, 0x20_0000_0000, Page2M)

	var buf bytes.Buffer
	n, err := ctx.Dump(&buf)
	if err != nil {
		t.Fatalf("dump failed: %+v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 leaves, got %d", n)
	}
	expected := strings.Join([]string{
		"  VA 0x000000400000 -> PA 0x001000000000 (4KB)",
		"  VA 0x000000401000 -> PA 0x001000001000 (4KB)",
		"  VA 0x000000600000 -> PA 0x002000000000 (2MB)",
		"",
	}, "\n")
	if diff := cmp.Diff(expected, buf.String()); diff != "" {
		t.Errorf("unexpected dump (-want +got):\n%s", diff)
	}
}

func TestDumpRandom(t *testing.T) {
	for _, n := range []int{0, 1, 50, 500} {
		ctx := newTestContext(t)
		for _, m := range randomMappings(rand.New(rand.NewSource(int64(n))), n) {
			mustMap(t, ctx, m.Virt, m.Phys, m.Size)
		}
		var buf bytes.Buffer
		got, err := ctx.Dump(&buf)
		if err != nil {
			t.Fatalf("%d mappings: %+v", n, err)
		}
		if got != n {
			t.Errorf("expected dump to visit %d leaves, got %d", n, got)
		}
		if lines := strings.Count(buf.String(), "\n"); lines != n {
			t.Errorf("expected %d lines, got %d", n, lines)
		}
	}
}

// corruptingWriter rewrites a leaf while Dump is printing it, so the
// translation that follows sees something else.
type corruptingWriter struct {
	leaf node
	slot int
}

func (w *corruptingWriter) Write(p []byte) (int, error) {
	w.leaf.set(w.slot, entry(0x30_0000_0000)|entryTerminal)
	return len(p), nil
}

func TestDumpSelfCheck(t *testing.T) {
	ctx := newTestContext(t)
	mustMap(t, ctx, 0x40_0000, 0x10_0000_0000, Page4K)

	cfg := ctx.Config()
	f := (*forwardTable)(ctx)
	idx := cfg.Indices(0x40_0000)
	var n node = ctx.nodes[0]
	for level := 0; level < 3; level++ {
		n = cfg.mustChild(f, n.get(idx[level]))
	}

	_, err := ctx.Dump(&corruptingWriter{leaf: n, slot: idx[3]})
	if errors.Cause(err) != ErrSelfCheck {
		t.Fatalf("expected ErrSelfCheck, got %v", err)
	}
}
