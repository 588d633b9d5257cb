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

import "github.com/pkg/errors"

var (
	// ErrAlreadyMapped is returned by Map when the slot for the page is
	// already in use.
	ErrAlreadyMapped = errors.New("virtual page is already mapped")
	// ErrCoveredByLargePage is returned by Map when a larger page already
	// maps the region the new page falls into.
	ErrCoveredByLargePage = errors.New("virtual page is covered by a larger page")
	// ErrUnsupportedPageSize is returned for page sizes the tables can't hold.
	ErrUnsupportedPageSize = errors.New("unsupported page size")
	// ErrInvalidConfig is returned for layouts that fail Config.Validate.
	ErrInvalidConfig = errors.New("invalid table layout")
	// ErrSelfCheck is returned by Dump when a leaf doesn't translate back
	// to the address stored in it.
	ErrSelfCheck = errors.New("translation self-check failed")
)
