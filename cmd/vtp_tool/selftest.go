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

package main

import (
	"io"
	"math/rand"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/intel/intel-fpga-vtp/pkg/fpga/vtp"
)

const (
	// Pages mapped as one contiguous run on top of the random mappings.
	regionPages = 16

	simPhysLarge = 0x100_0000_0000
	simPhysSmall = 0x200_0000_0000
	simPhysRun   = 0x300_0000_0000
)

// randomRegions returns n distinct 2MB aligned virtual addresses inside
// an addrBits wide address space, which must hold at least n of them.
func randomRegions(r *rand.Rand, addrBits uint, n int) []uint64 {
	used := make(map[uint64]bool, n)
	regions := make([]uint64, 0, n)
	for len(regions) < n {
		va := uint64(r.Int63n(1<<(addrBits-21))) << 21
		if used[va] {
			continue
		}
		used[va] = true
		regions = append(regions, va)
	}
	return regions
}

// randomMappings fills each region with either one 2MB page or one 4KB
// page at a random offset, so no two mappings overlap.
func randomMappings(r *rand.Rand, regions []uint64) []vtp.Mapping {
	m := make([]vtp.Mapping, 0, len(regions))
	for i, va := range regions {
		pa := uint64(i) << 21
		if r.Intn(2) == 0 {
			m = append(m, vtp.Mapping{Virt: va, Phys: simPhysLarge + pa, Size: vtp.Page2M})
			continue
		}
		off := uint64(r.Intn(512)) << 12
		m = append(m, vtp.Mapping{Virt: va + off, Phys: simPhysSmall + pa + off, Size: vtp.Page4K})
	}
	return m
}

// selfTest fills a simulated context with n random mappings plus one
// contiguous run and checks every property the tables promise. The dump
// goes to out.
func selfTest(cfg vtp.Config, n int, seed int64, out io.Writer) (*vtp.Context, error) {
	ctx, err := vtp.New(vtp.NewRuntimeAllocator(), vtp.Options{Config: cfg})
	if err != nil {
		return nil, err
	}

	// Every mapping gets a 2MB region of its own and the run one more.
	addrBits := ctx.Config().AddrBits()
	if addrBits <= 21 || uint64(n+1) > 1<<(addrBits-21) {
		return nil, errors.Errorf("a %d-bit address space can't hold %d separate 2MB regions", addrBits, n+1)
	}

	r := rand.New(rand.NewSource(seed))
	regions := randomRegions(r, addrBits, n+1)
	mappings := randomMappings(r, regions[:n])

	for _, m := range mappings {
		if _, ok := ctx.Translate(m.Virt); ok {
			return nil, errors.Errorf("%#x translates before it is mapped", m.Virt)
		}
		if err := ctx.Map(m.Virt, m.Phys, m.Size); err != nil {
			return nil, err
		}
		if err := checkTranslation(ctx, m.Virt+uint64(m.Size)/2, m.Phys+uint64(m.Size)/2); err != nil {
			return nil, err
		}
	}

	run := regions[n]
	if _, err := ctx.MapRegion(run, simPhysRun, regionPages*uint64(vtp.Page4K), vtp.Page4K); err != nil {
		return nil, err
	}

	for _, m := range mappings {
		if err := checkTranslation(ctx, m.Virt, m.Phys); err != nil {
			return nil, err
		}
		if err := ctx.Map(m.Virt, m.Phys, m.Size); errors.Cause(err) != vtp.ErrAlreadyMapped {
			return nil, errors.Errorf("remapping %#x: expected %v, got %v", m.Virt, vtp.ErrAlreadyMapped, err)
		}
		if m.Size == vtp.Page2M {
			inner := m.Virt + uint64(vtp.Page4K)*uint64(r.Intn(512))
			if err := ctx.Map(inner, simPhysRun, vtp.Page4K); errors.Cause(err) != vtp.ErrCoveredByLargePage {
				return nil, errors.Errorf("4KB page at %#x inside 2MB page: expected %v, got %v", inner, vtp.ErrCoveredByLargePage, err)
			}
		} else if pa, ok := ctx.Translate(m.Virt ^ uint64(vtp.Page4K)); ok {
			return nil, errors.Errorf("unmapped neighbour of %#x translates to %#x", m.Virt, pa)
		}
	}

	leaves, err := ctx.Dump(out)
	if err != nil {
		return nil, err
	}
	if leaves != n+regionPages {
		return nil, errors.Errorf("dump visited %d leaves, expected %d", leaves, n+regionPages)
	}
	klog.V(2).InfoS("selftest done", "mappings", n, "tablePages", ctx.Stats().TablePages)
	return ctx, nil
}

func checkTranslation(ctx *vtp.Context, va, expected uint64) error {
	pa, ok := ctx.Translate(va)
	if !ok {
		return errors.Errorf("%#x: no translation, expected %#x", va, expected)
	}
	if pa != expected {
		return errors.Errorf("%#x translates to %#x, expected %#x", va, pa, expected)
	}
	return nil
}
