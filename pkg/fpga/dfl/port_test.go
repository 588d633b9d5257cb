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
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/intel/intel-fpga-vtp/pkg/fpga/vtp"
)

func tempDir() string {
	dir, err := os.MkdirTemp("", "dfl")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(os.RemoveAll, dir)
	return dir
}

var _ = Describe("Port", func() {
	It("fails to open a missing device", func() {
		_, err := OpenPort(filepath.Join(tempDir(), "dfl-port.0"))
		Expect(os.IsNotExist(errors.Cause(err))).To(BeTrue())
	})

	It("fails on a file that isn't a DFL port", func() {
		path := filepath.Join(tempDir(), "dfl-port.0")
		Expect(os.WriteFile(path, nil, 0644)).To(Succeed())
		_, err := OpenPort(path)
		Expect(err).To(MatchError(ContainSubstring("kernel API mismatch")))
	})

	Context("with an MMIO region", func() {
		var port *Port

		BeforeEach(func() {
			port = &Port{mmio: make([]byte, 0x100)}
		})

		It("writes CSRs as little-endian 64-bit words", func() {
			Expect(port.WriteCSR(0x20, 0x1122_3344_5566_7788)).To(Succeed())
			Expect(binary.LittleEndian.Uint64(port.mmio[0x20:])).To(Equal(uint64(0x1122_3344_5566_7788)))
			v, err := port.ReadCSR(0x20)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint64(0x1122_3344_5566_7788)))
		})

		It("rejects offsets outside the region or unaligned", func() {
			Expect(port.WriteCSR(0x100, 1)).NotTo(Succeed())
			Expect(port.WriteCSR(0xfc, 1)).NotTo(Succeed())
			_, err := port.ReadCSR(0x21)
			Expect(err).To(HaveOccurred())
		})

		It("receives the page table root from a translation context", func() {
			ctx, err := vtp.New(vtp.NewRuntimeAllocator(), vtp.Options{Logger: logr.Discard()})
			Expect(err).NotTo(HaveOccurred())
			Expect(ctx.Reset(port)).To(Succeed())

			cfg := ctx.Config()
			root, err := port.ReadCSR(cfg.CSRPageTablePAddr)
			Expect(err).NotTo(HaveOccurred())
			Expect(root * cfg.LineBytes).To(Equal(ctx.RootPhysical()))
			mode, err := port.ReadCSR(cfg.CSRMode)
			Expect(err).NotTo(HaveOccurred())
			Expect(mode).To(Equal(uint64(vtp.ModeEnable | vtp.ModeInvalidate)))
		})

		It("invalidates a single page by cache line", func() {
			ctx, err := vtp.New(vtp.NewRuntimeAllocator(), vtp.Options{Logger: logr.Discard()})
			Expect(err).NotTo(HaveOccurred())
			Expect(ctx.InvalidatePage(port, 0x40_1000)).To(Succeed())

			cfg := ctx.Config()
			line, err := port.ReadCSR(cfg.CSRInvalPageVAddr)
			Expect(err).NotTo(HaveOccurred())
			Expect(line).To(Equal(uint64(0x40_1000) / cfg.LineBytes))
		})

		It("reports CSR write failures", func() {
			ctx, err := vtp.New(vtp.NewRuntimeAllocator(), vtp.Options{Logger: logr.Discard()})
			Expect(err).NotTo(HaveOccurred())
			small := &Port{mmio: make([]byte, 0x10)}
			Expect(ctx.Publish(small)).To(MatchError(ContainSubstring("page table base")))
		})
	})
})
