// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package clock provides the reference consensus.Clock implementation:
// a thin wrapper over the standard library's wall clock and timers.
package clock

import "time"

// System is the production consensus.Clock: real wall-clock time, real
// timers.
type System struct{}

// New returns a System clock.
func New() System { return System{} }

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// After returns a channel that fires once d has elapsed.
func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }
