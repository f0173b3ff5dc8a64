// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package consensus_test

import (
	"context"
	"testing"
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/config"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/key"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
	"github.com/dusk-network/dusk-crypto/bls"
	"github.com/stretchr/testify/require"
)

type stubSigner struct{ keys key.Keys }

func (s stubSigner) SignSingle(msg []byte) ([]byte, error) {
	sig, err := bls.Sign(s.keys.BLSSecretKey, s.keys.BLSPubKey, msg)
	if err != nil {
		return nil, err
	}

	return sig.Compress(), nil
}

func (s stubSigner) SignSeed(prevSeed []byte) ([]byte, error) {
	return s.SignSingle(prevSeed)
}

type stubOutbound struct{ sent []message.Message }

func (o *stubOutbound) Send(ctx context.Context, msg message.Message) error {
	o.sent = append(o.sent, msg)
	return nil
}

func TestEmitterSendVote(t *testing.T) {
	keys, err := key.NewRandKeys()
	require.NoError(t, err)

	out := &stubOutbound{}
	e := &consensus.Emitter{Keys: keys, Signer: stubSigner{keys: keys}, Outbound: out}

	vote := message.Vote{Kind: message.Valid, Hash: make([]byte, 32)}
	require.NoError(t, e.SendVote(context.Background(), topics.Validation, 1, 0, header.ValidationStep, vote))
	require.Len(t, out.sent, 1)
	require.Equal(t, topics.Validation, out.sent[0].Topic)
}

func TestTimeoutsIncreaseAndCap(t *testing.T) {
	cfg := config.Consensus{MinStepTimeout: 1 * time.Second, MaxStepTimeout: 3 * time.Second, TimeoutIncrease: 1 * time.Second}
	timeouts := consensus.NewTimeouts(cfg)

	require.Equal(t, 1*time.Second, timeouts.Get(header.ValidationStep, false))

	timeouts.Increase(header.ValidationStep)
	require.Equal(t, 2*time.Second, timeouts.Get(header.ValidationStep, false))

	timeouts.Increase(header.ValidationStep)
	timeouts.Increase(header.ValidationStep)
	require.Equal(t, 3*time.Second, timeouts.Get(header.ValidationStep, false))
}

func TestTimeoutsEmergencyDoubles(t *testing.T) {
	cfg := config.Consensus{MinStepTimeout: 2 * time.Second, MaxStepTimeout: 10 * time.Second, TimeoutIncrease: 1 * time.Second}
	timeouts := consensus.NewTimeouts(cfg)

	require.Equal(t, 4*time.Second, timeouts.Get(header.RatificationStep, true))
}

func TestQueuePutAndGet(t *testing.T) {
	stored := make(map[string][]message.Message)
	key := func(round uint64, iteration uint8, step header.StepName) string {
		return string(rune(round)) + string(rune(iteration)) + step.String()
	}

	q := consensus.NewQueue(
		func(round uint64, iteration uint8, step header.StepName) []message.Message {
			return stored[key(round, iteration, step)]
		},
		func(round uint64, iteration uint8, step header.StepName, msg message.Message) bool {
			k := key(round, iteration, step)
			stored[k] = append(stored[k], msg)
			return true
		},
	)

	msg := message.Message{Topic: topics.Validation}
	require.True(t, q.PutEvent(1, 0, header.ValidationStep, msg))
	require.Len(t, q.GetEvents(1, 0, header.ValidationStep), 1)
}
