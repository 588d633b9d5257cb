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
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Port represents a DFL FPGA port device (/dev/dfl-port.N) with its AFU
// MMIO region mapped.
type Port struct {
	DevPath string
	f       *os.File
	mmio    []byte
}

// OpenPort opens the port device and maps the AFU's MMIO region.
func OpenPort(dev string) (*Port, error) {
	f, err := os.OpenFile(dev, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	port := &Port{DevPath: dev, f: f}
	// check that kernel API is compatible
	if _, err := port.GetAPIVersion(); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "kernel API mismatch")
	}
	ri, err := port.PortGetRegionInfo(RegionIndexAFU)
	if err != nil {
		port.Close()
		return nil, errors.Wrap(err, "unable to get AFU region info")
	}
	if ri.Flags&RegionFlagMmap == 0 {
		port.Close()
		return nil, errors.Errorf("AFU region of %s can't be mmapped", dev)
	}
	port.mmio, err = unix.Mmap(int(f.Fd()), int64(ri.Offset), int(ri.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		port.Close()
		return nil, errors.Wrap(err, "unable to mmap AFU region")
	}
	return port, nil
}

// Close unmaps the MMIO region and closes the device.
func (p *Port) Close() error {
	var err error
	if p.mmio != nil {
		err = unix.Munmap(p.mmio)
		p.mmio = nil
	}
	if p.f != nil {
		if cerr := p.f.Close(); err == nil {
			err = cerr
		}
		p.f = nil
	}
	return errors.WithStack(err)
}

func ioctl(fd, req, arg uintptr) (uintptr, error) {
	ret, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return ret, errno
	}
	return ret, nil
}

// GetAPIVersion  Report the version of the driver API.
// * Return: Driver API Version.
func (p *Port) GetAPIVersion() (int, error) {
	v, err := ioctl(p.f.Fd(), FPGAGetAPIVersion, 0)
	return int(v), err
}

// CheckExtension Check whether an extension is supported.
// * Return: 0 if not supported, otherwise the extension is supported.
func (p *Port) CheckExtension() (int, error) {
	v, err := ioctl(p.f.Fd(), FPGACheckExtension, 0)
	return int(v), err
}

// PortReset Reset the FPGA Port and its AFU.
func (p *Port) PortReset() error {
	_, err := ioctl(p.f.Fd(), FPGAPortReset, 0)
	return err
}

// PortGetInfo Retrieve information about the fpga port.
func (p *Port) PortGetInfo() (ret PortInfo, err error) {
	var value dflFPGAPortInfo
	value.Argsz = uint32(unsafe.Sizeof(value))
	_, err = ioctl(p.f.Fd(), FPGAPortGetInfo, uintptr(unsafe.Pointer(&value)))
	if err == nil {
		ret.Flags = value.Flags
		ret.Regions = value.NumRegions
		ret.Umsgs = value.NumUmsgs
	}
	return
}

// PortGetRegionInfo Retrieve information about a device memory region.
func (p *Port) PortGetRegionInfo(index uint32) (ret RegionInfo, err error) {
	var value dflFPGAPortRegionInfo
	value.Argsz = uint32(unsafe.Sizeof(value))
	value.Index = index
	_, err = ioctl(p.f.Fd(), FPGAPortGetRegionInfo, uintptr(unsafe.Pointer(&value)))
	if err == nil {
		ret.Flags = value.Flags
		ret.Index = value.Index
		ret.Offset = value.Offset
		ret.Size = value.Size
	}
	return
}

// DMAMap pins length bytes of process memory at addr and returns the IO
// virtual address the accelerator reaches them at.
// Only page aligned memory is accepted by the driver.
func (p *Port) DMAMap(addr, length uint64) (uint64, error) {
	var value dflFPGAPortDMAMap
	value.Argsz = uint32(unsafe.Sizeof(value))
	value.UserAddr = addr
	value.Length = length
	if _, err := ioctl(p.f.Fd(), FPGAPortDMAMap, uintptr(unsafe.Pointer(&value))); err != nil {
		return 0, errors.Wrapf(err, "DMA map of %#x+%#x", addr, length)
	}
	return value.IOVA, nil
}

// DMAUnmap releases a mapping made by DMAMap.
func (p *Port) DMAUnmap(iova uint64) error {
	var value dflFPGAPortDMAUnmap
	value.Argsz = uint32(unsafe.Sizeof(value))
	value.IOVA = iova
	if _, err := ioctl(p.f.Fd(), FPGAPortDMAUnmap, uintptr(unsafe.Pointer(&value))); err != nil {
		return errors.Wrapf(err, "DMA unmap of %#x", iova)
	}
	return nil
}

// csr returns the MMIO word at offset. CSRs are 64-bit and must be
// accessed with a single load or store.
func (p *Port) csr(offset uint64) (*uint64, error) {
	if offset%8 != 0 || offset+8 > uint64(len(p.mmio)) {
		return nil, errors.Errorf("CSR offset %#x outside of the %#x byte AFU region", offset, len(p.mmio))
	}
	return (*uint64)(unsafe.Pointer(&p.mmio[offset])), nil
}

// ReadCSR reads the 64-bit CSR at offset.
func (p *Port) ReadCSR(offset uint64) (uint64, error) {
	reg, err := p.csr(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint64(reg), nil
}

// WriteCSR writes the 64-bit CSR at offset.
func (p *Port) WriteCSR(offset, value uint64) error {
	reg, err := p.csr(offset)
	if err != nil {
		return err
	}
	atomic.StoreUint64(reg, value)
	return nil
}
