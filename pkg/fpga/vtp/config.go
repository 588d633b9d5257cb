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
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

const (
	// Default layout: 48-bit address space split into four 9-bit
	// radix levels above a 12-bit page offset.
	defaultPageShift  = 12
	defaultLevelBits  = 9
	defaultLevels     = 4
	defaultEntryBytes = 8
	defaultLineBytes  = 64

	// Offsets of the VTP CSRs relative to the VTP feature base.
	defaultCSRMode           = 0x18
	defaultCSRPageTablePAddr = 0x20
	defaultCSRInvalPageVAddr = 0x28
)

// Config describes the radix layout shared by the host and the
// accelerator's page table walker, and where the walker's CSRs live.
type Config struct {
	PageShift  uint `json:"pageShift"`
	LevelBits  uint `json:"levelBits"`
	Levels     uint `json:"levels"`
	EntryBytes uint `json:"entryBytes"`
	// LineBytes is the divisor the accelerator applies to addresses
	// written to its CSRs.
	LineBytes uint64 `json:"lineBytes"`

	CSRMode           uint64 `json:"csrMode"`
	CSRPageTablePAddr uint64 `json:"csrPageTablePAddr"`
	CSRInvalPageVAddr uint64 `json:"csrInvalPageVAddr"`
}

// DefaultConfig returns the 4-level, 512-way, 48-bit layout.
func DefaultConfig() Config {
	return Config{
		PageShift:         defaultPageShift,
		LevelBits:         defaultLevelBits,
		Levels:            defaultLevels,
		EntryBytes:        defaultEntryBytes,
		LineBytes:         defaultLineBytes,
		CSRMode:           defaultCSRMode,
		CSRPageTablePAddr: defaultCSRPageTablePAddr,
		CSRInvalPageVAddr: defaultCSRInvalPageVAddr,
	}
}

// LoadConfig reads a YAML config file. Fields missing from the file keep
// their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WithStack(err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "unable to parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config in %s", path)
	}
	return cfg, nil
}

// Validate checks that the layout is one a node page can hold.
func (c Config) Validate() error {
	switch {
	case c.PageShift == 0 || c.LevelBits == 0 || c.Levels == 0:
		return errors.Wrapf(ErrInvalidConfig, "pageShift, levelBits and levels must be non-zero")
	case c.PageShift != defaultPageShift:
		// Table nodes and the smallest mapping are both 4KB pages.
		return errors.Wrapf(ErrInvalidConfig, "pageShift %d: only 4KB base pages are supported", c.PageShift)
	case c.EntryBytes != 8:
		return errors.Wrapf(ErrInvalidConfig, "entryBytes %d: only 64-bit slots are supported", c.EntryBytes)
	case c.AddrBits() > 64:
		return errors.Wrapf(ErrInvalidConfig, "address space of %d bits does not fit in 64", c.AddrBits())
	case c.NodeBytes() > c.PageBytes():
		return errors.Wrapf(ErrInvalidConfig, "node of %d bytes does not fit a %d byte page", c.NodeBytes(), c.PageBytes())
	case c.LineBytes == 0 || c.LineBytes&(c.LineBytes-1) != 0:
		return errors.Wrapf(ErrInvalidConfig, "lineBytes %d is not a power of two", c.LineBytes)
	}
	return nil
}

// AddrBits is the width of the translated address space.
func (c Config) AddrBits() uint {
	return c.PageShift + c.Levels*c.LevelBits
}

// Entries is the number of slots in a node.
func (c Config) Entries() int {
	return 1 << c.LevelBits
}

// PageBytes is the size of the smallest page, which is also the size of
// a node page.
func (c Config) PageBytes() uint64 {
	return 1 << c.PageShift
}

// NodeBytes is the number of bytes used by the slots of one node.
func (c Config) NodeBytes() uint64 {
	return uint64(c.Entries()) * uint64(c.EntryBytes)
}
