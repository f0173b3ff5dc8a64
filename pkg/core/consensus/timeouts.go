// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package consensus

import (
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/config"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
)

// Timeouts tracks the per-step adaptive timeout the Iteration
// Controller reads and grows across a round (spec.md §4.6: "an
// adaptive timeout maintained across iterations... on success, it is
// preserved (not reduced in-round)").
type Timeouts struct {
	values map[header.StepName]time.Duration
	min    time.Duration
	max    time.Duration
	step   time.Duration
}

// NewTimeouts seeds a Timeouts set from cfg's configured bounds, with
// every step starting at the minimum.
func NewTimeouts(cfg config.Consensus) *Timeouts {
	t := &Timeouts{
		values: make(map[header.StepName]time.Duration, 3),
		min:    cfg.MinStepTimeout,
		max:    cfg.MaxStepTimeout,
		step:   cfg.TimeoutIncrease,
	}

	for _, s := range []header.StepName{header.Proposal, header.ValidationStep, header.RatificationStep} {
		t.values[s] = t.min
	}

	return t
}

// Get returns the current timeout for step, doubled if emergency is
// true (spec.md §4.5.3: "from iteration >= EMERGENCY_ITERATION_THRESHOLD
// ... timeouts double").
func (t *Timeouts) Get(step header.StepName, emergency bool) time.Duration {
	d := t.values[step]
	if emergency {
		d *= 2
	}

	return d
}

// Increase grows step's timeout by the configured increment, capped at
// max — called when a step fails to reach quorum.
func (t *Timeouts) Increase(step header.StepName) {
	d := t.values[step] + t.step
	if d > t.max {
		d = t.max
	}

	t.values[step] = d
}
