// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package clock_test

import (
	"testing"
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/clock"
	"github.com/stretchr/testify/require"
)

func TestSystemClockAfterFires(t *testing.T) {
	c := clock.New()

	select {
	case <-c.After(10 * time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("System.After never fired")
	}
}

func TestMockClockReflectsSet(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := clock.NewMock(t0)
	require.Equal(t, t0, m.Now())

	t1 := t0.Add(time.Hour)
	m.Set(t1)
	require.Equal(t, t1, m.Now())

	select {
	case got := <-m.After(time.Minute):
		require.Equal(t, t1, got)
	default:
		t.Fatal("Mock.After did not fire immediately")
	}
}
