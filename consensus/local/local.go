package local

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/consensus"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/wal"
)

var _ consensus.Consensus = &Consensus{}

// Consensus is the single-replica implementation: this node is the whole
// quorum, so every proposal is durably appended to the log and
// acknowledged immediately. Used for unreplicated tablets and tests.
type Consensus struct {
	mu      sync.Mutex
	self    metapb.QuorumPeer
	log     *wal.Log
	quorum  metapb.Quorum
	term    uint64
	started bool
	stopped bool
}

// New create a local consensus instance.
func New() *Consensus {
	return &Consensus{}
}

// Init implements consensus.Consensus.
func (c *Consensus) Init(self metapb.QuorumPeer, log *wal.Log) error {
	if log == nil {
		return errors.Wrap(consensus.ErrNotInitialized, "local consensus requires a log")
	}

	c.mu.Lock()
	c.self = self
	c.log = log
	c.mu.Unlock()
	return nil
}

// Start implements consensus.Consensus. The agreed quorum is the desired
// one with this node forced leader; peers other than self are dropped
// since nothing replicates to them.
func (c *Consensus) Start(desired metapb.Quorum) (metapb.Quorum, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.log == nil {
		return metapb.Quorum{}, consensus.ErrNotInitialized
	}
	if c.stopped {
		return metapb.Quorum{}, consensus.ErrStopped
	}

	self := c.self
	self.Role = metapb.ROLE_LEADER
	agreed := metapb.Quorum{
		SeqNo: desired.SeqNo,
		Peers: []metapb.QuorumPeer{self},
	}

	c.term++
	c.quorum = agreed
	c.started = true
	return agreed.Clone(), nil
}

// Replicate implements consensus.Consensus.
func (c *Consensus) Replicate(ctx context.Context, payload []byte) (*consensus.Future, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil, consensus.ErrNotInitialized
	}
	if c.stopped {
		return nil, consensus.ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	index, err := c.log.Append(c.term, payload)
	if err != nil {
		return nil, errors.Wrap(err, "append to local log")
	}

	future := consensus.NewFuture()
	future.Respond(index, nil)
	return future, nil
}

// Shutdown implements consensus.Consensus.
func (c *Consensus) Shutdown() error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	return nil
}
