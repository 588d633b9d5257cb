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

// Bits of the VTP mode CSR.
const (
	// ModeEnable turns on address translation in the accelerator.
	ModeEnable = 1 << 0
	// ModeInvalidate drops every cached translation.
	ModeInvalidate = 1 << 1
)

// CSRWriter writes a 64-bit accelerator CSR at a byte offset.
type CSRWriter interface {
	WriteCSR(offset, value uint64) error
}

func (t *Context) writeCSR(dev CSRWriter, name string, offset, value uint64) error {
	t.log.V(4).Info("csr write", "csr", name, "offset", fmt.Sprintf("%#x", offset), "value", fmt.Sprintf("%#x", value))
	if err := dev.WriteCSR(offset, value); err != nil {
		return errors.Wrapf(err, "unable to write %s CSR at %#x", name, offset)
	}
	return nil
}

// Publish hands the forward root to the accelerator's page table walker
// and enables translation.
func (t *Context) Publish(dev CSRWriter) error {
	if err := t.writeCSR(dev, "page table base", t.cfg.CSRPageTablePAddr, t.rootPhys/t.cfg.LineBytes); err != nil {
		return err
	}
	return t.writeCSR(dev, "mode", t.cfg.CSRMode, ModeEnable)
}

// InvalidateAll drops every translation cached by the accelerator.
func (t *Context) InvalidateAll(dev CSRWriter) error {
	return t.writeCSR(dev, "mode", t.cfg.CSRMode, ModeEnable|ModeInvalidate)
}

// InvalidatePage drops the accelerator's cached translation for the page
// containing va.
func (t *Context) InvalidatePage(dev CSRWriter, va uint64) error {
	return t.writeCSR(dev, "invalidate page", t.cfg.CSRInvalPageVAddr, va/t.cfg.LineBytes)
}

// Reset restores the accelerator's view after a device reset. The host
// tables are kept as they are; only the root is republished and the
// accelerator's cache flushed.
func (t *Context) Reset(dev CSRWriter) error {
	if err := t.Publish(dev); err != nil {
		return err
	}
	return t.InvalidateAll(dev)
}
