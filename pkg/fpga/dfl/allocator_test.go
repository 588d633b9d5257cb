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

//go:build linux
// +build linux

package dfl

import (
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/intel/intel-fpga-vtp/pkg/fpga/vtp"
)

// fakeIOMMU hands out IOVAs from a bump pointer.
type fakeIOMMU struct {
	next     uint64
	mapped   map[uint64]uint64
	mapErr   error
	misalign bool
}

func newFakeIOMMU() *fakeIOMMU {
	return &fakeIOMMU{next: 0x8000_0000, mapped: map[uint64]uint64{}}
}

func (m *fakeIOMMU) DMAMap(addr, length uint64) (uint64, error) {
	if m.mapErr != nil {
		return 0, m.mapErr
	}
	iova := (m.next + length - 1) &^ (length - 1)
	if m.misalign {
		iova += 0x800
	}
	m.next = iova + length
	m.mapped[iova] = addr
	return iova, nil
}

func (m *fakeIOMMU) DMAUnmap(iova uint64) error {
	if _, ok := m.mapped[iova]; !ok {
		return errors.Errorf("IOVA %#x is not mapped", iova)
	}
	delete(m.mapped, iova)
	return nil
}

var _ = Describe("Allocator", func() {
	var (
		iommu *fakeIOMMU
		alloc *Allocator
	)

	BeforeEach(func() {
		iommu = newFakeIOMMU()
		alloc = NewAllocator(iommu)
	})

	AfterEach(func() {
		Expect(alloc.Close()).To(Succeed())
		Expect(iommu.mapped).To(BeEmpty())
	})

	It("hands out zeroed, aligned and DMA mapped 4KB pages", func() {
		p, err := alloc.AllocPage(vtp.Page4K)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Mem).To(HaveLen(4096))
		Expect(p.Mem).To(Equal(make([]byte, 4096)))
		Expect(vtp.Page4K.Aligned(p.Virt)).To(BeTrue())
		Expect(vtp.Page4K.Aligned(p.Phys)).To(BeTrue())
		Expect(iommu.mapped).To(HaveKeyWithValue(p.Phys, p.Virt))
		Expect(alloc.Pages()).To(Equal(1))
	})

	It("rejects page sizes it can't allocate", func() {
		_, err := alloc.AllocPage(vtp.PageSize(8192))
		Expect(errors.Cause(err)).To(Equal(vtp.ErrUnsupportedPageSize))
	})

	It("releases the memory when DMA mapping fails", func() {
		iommu.mapErr = errors.New("no IOMMU group")
		_, err := alloc.AllocPage(vtp.Page4K)
		Expect(err).To(MatchError(ContainSubstring("no IOMMU group")))
		Expect(alloc.Pages()).To(Equal(0))
	})

	It("rejects unaligned IOVAs", func() {
		iommu.misalign = true
		_, err := alloc.AllocPage(vtp.Page4K)
		Expect(err).To(HaveOccurred())
		Expect(alloc.Pages()).To(Equal(0))
	})

	It("backs a translation context", func() {
		ctx, err := vtp.New(alloc, vtp.Options{Logger: logr.Discard()})
		Expect(err).NotTo(HaveOccurred())

		buf, err := alloc.AllocPage(vtp.Page4K)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx.Map(buf.Virt, buf.Phys, vtp.Page4K)).To(Succeed())

		pa, ok := ctx.Translate(buf.Virt + 0x10)
		Expect(ok).To(BeTrue())
		Expect(pa).To(Equal(buf.Phys + 0x10))

		virt, ok := ctx.NodeVirtual(ctx.RootPhysical())
		Expect(ok).To(BeTrue())
		Expect(iommu.mapped).To(HaveKeyWithValue(ctx.RootPhysical(), virt))

		// Root, three inner nodes and the buffer.
		Expect(alloc.Pages()).To(Equal(5))
	})
})
