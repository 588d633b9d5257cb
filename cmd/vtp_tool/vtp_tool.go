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
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/intel/intel-fpga-vtp/pkg/fpga/dfl"
	"github.com/intel/intel-fpga-vtp/pkg/fpga/vtp"
)

type options struct {
	cmd        string
	device     string
	configPath string
	count      int
	seed       int64
	bufSize    uint64
	large      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.device, "d", "", "Path to FPGA port device node (e.g. /dev/dfl-port.0)")
	flag.StringVar(&opts.configPath, "config", "", "Path to page table layout config (YAML)")
	flag.IntVar(&opts.count, "n", 1000, "Number of random mappings for selftest, dump and stats")
	flag.Int64Var(&opts.seed, "seed", 1, "Seed for the random mappings")
	flag.Uint64Var(&opts.bufSize, "size", 64<<10, "Buffer size in bytes for bufinfo")
	flag.BoolVar(&opts.large, "large", false, "Use 2MB pages for bufinfo")
	klog.InitFlags(nil)

	flag.Parse()

	if flag.NArg() < 1 {
		klog.Error("Please provide command: selftest, dump, stats, portinfo, bufinfo")
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
	opts.cmd = flag.Arg(0)

	if err := run(opts, os.Stdout); err != nil {
		klog.Errorf("%+v", err)
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
	klog.Flush()
}

func run(opts options, out io.Writer) error {
	if err := validateFlags(opts); err != nil {
		return errors.Wrap(err, "invalid arguments")
	}

	cfg := vtp.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = vtp.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}

	switch opts.cmd {
	case "selftest":
		if _, err := selfTest(cfg, opts.count, opts.seed, io.Discard); err != nil {
			return err
		}
		fmt.Fprintf(out, "selftest passed: %d mappings\n", opts.count)
	case "dump":
		_, err := selfTest(cfg, opts.count, opts.seed, out)
		return err
	case "stats":
		ctx, err := selfTest(cfg, opts.count, opts.seed, io.Discard)
		if err != nil {
			return err
		}
		return writeMetrics(out, ctx.Stats())
	case "portinfo":
		return portInfo(out, opts.device)
	case "bufinfo":
		return bufInfo(out, cfg, opts)
	default:
		return errors.Errorf("unknown command %+v", opts.cmd)
	}
	return nil
}

func validateFlags(opts options) error {
	switch opts.cmd {
	case "selftest", "dump", "stats":
		if opts.count < 0 {
			return errors.Errorf("number of mappings must not be negative")
		}
	case "portinfo", "bufinfo":
		// device must not be empty
		if opts.device == "" {
			return errors.Errorf("FPGA device name is missing")
		}
		if !strings.HasPrefix(opts.device, "/dev/dfl-port.") {
			return errors.Errorf("unknown type of port %s", opts.device)
		}
		if opts.cmd == "bufinfo" && opts.bufSize == 0 {
			return errors.Errorf("buffer size must not be zero")
		}
	}
	return nil
}

func portInfo(out io.Writer, fname string) error {
	f, err := dfl.OpenPort(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	api, err := f.GetAPIVersion()
	fmt.Fprintln(out, "API:", api, err)
	ext, err := f.CheckExtension()
	fmt.Fprintln(out, "CheckExtension:", ext, err)
	pi, err := f.PortGetInfo()
	if err != nil {
		return errors.Wrap(err, "unable to get port info")
	}
	fmt.Fprintf(out, "PortGetInfo: %+v\n", pi)
	for idx := uint32(0); idx < pi.Regions; idx++ {
		ri, err := f.PortGetRegionInfo(idx)
		fmt.Fprintf(out, "PortGetRegionInfo %d: %+v %v\n", idx, ri, err)
	}
	return nil
}

// bufInfo allocates a shared buffer on the port, makes it reachable
// through VTP and reports where its pages ended up.
func bufInfo(out io.Writer, cfg vtp.Config, opts options) error {
	port, err := dfl.OpenPort(opts.device)
	if err != nil {
		return err
	}
	defer port.Close()

	alloc := dfl.NewAllocator(port)
	defer alloc.Close()

	ctx, err := vtp.New(alloc, vtp.Options{Config: cfg})
	if err != nil {
		return err
	}
	if err := ctx.Publish(port); err != nil {
		return err
	}
	fmt.Fprintf(out, "Page table root       : %#x\n", ctx.RootPhysical())

	size := vtp.Page4K
	if opts.large {
		size = vtp.Page2M
	}
	if err := mapBuffer(out, ctx, alloc, opts.bufSize, size); err != nil {
		return err
	}
	if err := ctx.InvalidateAll(port); err != nil {
		return err
	}

	s := ctx.Stats()
	fmt.Fprintf(out, "Table pages           : %d\n", s.TablePages)
	return nil
}

// mapBuffer allocates bufSize bytes in pages of the given size, maps each
// page into ctx and prints where it landed.
func mapBuffer(out io.Writer, ctx *vtp.Context, alloc vtp.PageAllocator, bufSize uint64, size vtp.PageSize) error {
	pages := (bufSize + uint64(size) - 1) / uint64(size)
	for i := uint64(0); i < pages; i++ {
		p, err := alloc.AllocPage(size)
		if err != nil {
			return errors.Wrapf(err, "buffer page %d", i)
		}
		if err := ctx.Map(p.Virt, p.Phys, size); err != nil {
			return err
		}
		pa, ok := ctx.Translate(p.Virt)
		if !ok || pa != p.Phys {
			return errors.Errorf("buffer page %d at %#x translates to %#x (found %v), expected %#x", i, p.Virt, pa, ok, p.Phys)
		}
		fmt.Fprintf(out, "Page %-4d (%v)       : VA %#x -> PA %#x\n", i, size, p.Virt, pa)
	}
	return nil
}
