package consensus

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/wal"
)

var (
	// ErrNotInitialized is returned when Start or Replicate is invoked
	// before Init.
	ErrNotInitialized = errors.New("consensus: not initialized")
	// ErrStopped is returned by Replicate after Shutdown.
	ErrStopped = errors.New("consensus: stopped")
)

// Consensus encapsulates the replicated-log agreement protocol for one
// tablet. It is passive from the peer's point of view: the peer drives
// Init, Start, Replicate and Shutdown; the implementation internally
// manages elections and replication to the rest of the quorum.
type Consensus interface {
	// Init binds the consensus instance to this node's identity within
	// the quorum and to the tablet's durable log.
	Init(self metapb.QuorumPeer, log *wal.Log) error

	// Start runs the agreement protocol and returns the quorum the
	// replica set actually formed, which may differ from desired.
	Start(desired metapb.Quorum) (metapb.Quorum, error)

	// Replicate proposes payload to the replicated log. It returns once
	// the entry has been proposed; the future resolves with the assigned
	// log index when the entry is committed.
	Replicate(ctx context.Context, payload []byte) (*Future, error)

	// Shutdown stops the instance. Further Replicate calls fail.
	Shutdown() error
}

// Future resolves with the outcome of one replicated proposal.
type Future struct {
	respCh chan uint64
	errCh  chan error
}

// NewFuture create a pending future.
func NewFuture() *Future {
	return &Future{
		respCh: make(chan uint64, 1),
		errCh:  make(chan error, 1),
	}
}

// Respond resolves the future. Implementations call it exactly once.
func (f *Future) Respond(index uint64, err error) {
	if err != nil {
		f.errCh <- err
		return
	}
	f.respCh <- index
}

// Response blocks until the proposal is committed or failed.
func (f *Future) Response() (uint64, error) {
	select {
	case index := <-f.respCh:
		return index, nil
	case err := <-f.errCh:
		return 0, err
	}
}

// AsyncResponse exposes the resolution channels for select-based waits.
func (f *Future) AsyncResponse() (<-chan uint64, <-chan error) {
	return f.respCh, f.errCh
}
