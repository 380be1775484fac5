package raftgroup

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tiglabs/raft"
	raftproto "github.com/tiglabs/raft/proto"
	"github.com/tiglabs/tabletengine/consensus"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/util/log"
	"github.com/tiglabs/tabletengine/wal"
)

var _ consensus.Consensus = &Group{}

const defaultElectTimeout = 10 * time.Second

// Config configures one raft-backed consensus group.
type Config struct {
	TabletID   metapb.TabletID
	RaftServer *raft.RaftServer
	Resolver   *NodeResolver

	// Applied is the index the tablet engine has already applied; raft
	// replays committed entries after it on startup.
	Applied uint64

	// OnCommit is invoked for every committed entry, in log order. The
	// tablet wires it to its idempotent apply path so replicas that did
	// not originate a transaction still apply it.
	OnCommit func(data []byte, index uint64) error

	// OnLeaderChange is invoked when group leadership moves.
	OnLeaderChange func(leader uint64)

	// ElectTimeout bounds how long Start waits for the group to elect a
	// leader before reporting failure.
	ElectTimeout time.Duration
}

// Group is the multi-replica consensus implementation, one raft group per
// tablet on a node-wide raft server.
type Group struct {
	conf Config
	self metapb.QuorumPeer
	wlog *wal.Log

	mu      sync.RWMutex
	quorum  metapb.Quorum
	leader  uint64
	stopped bool

	electedOnce sync.Once
	electedCh   chan struct{}
	removeOnce  sync.Once
}

// New create a raft-backed consensus group.
func New(conf Config) (*Group, error) {
	if conf.RaftServer == nil {
		return nil, errors.New("raftgroup: raft server not provided")
	}
	if conf.TabletID == 0 {
		return nil, errors.New("raftgroup: tablet ID not provided")
	}
	if conf.ElectTimeout <= 0 {
		conf.ElectTimeout = defaultElectTimeout
	}
	return &Group{
		conf:      conf,
		electedCh: make(chan struct{}),
	}, nil
}

// Init implements consensus.Consensus.
func (g *Group) Init(self metapb.QuorumPeer, wlog *wal.Log) error {
	if wlog == nil {
		return errors.Wrap(consensus.ErrNotInitialized, "raft group requires a log")
	}

	g.mu.Lock()
	g.self = self
	g.wlog = wlog
	g.mu.Unlock()
	return nil
}

// Start implements consensus.Consensus. It creates the raft group from the
// desired quorum and waits for a leader to emerge; the returned quorum
// carries the roles the replica set actually settled on.
func (g *Group) Start(desired metapb.Quorum) (metapb.Quorum, error) {
	g.mu.Lock()
	if g.wlog == nil {
		g.mu.Unlock()
		return metapb.Quorum{}, consensus.ErrNotInitialized
	}
	if g.stopped {
		g.mu.Unlock()
		return metapb.Quorum{}, consensus.ErrStopped
	}
	g.quorum = desired.Clone()
	g.mu.Unlock()

	rc := &raft.RaftConfig{
		ID:           g.conf.TabletID,
		Applied:      g.conf.Applied,
		Peers:        make([]raftproto.Peer, 0, len(desired.Peers)),
		Storage:      g.wlog.Storage(),
		StateMachine: g,
	}
	for _, member := range desired.Peers {
		if g.conf.Resolver != nil {
			g.conf.Resolver.AddNode(member)
		}
		rc.Peers = append(rc.Peers, raftproto.Peer{Type: raftproto.PeerNormal, ID: member.ID})
	}

	if err := g.conf.RaftServer.CreateRaft(rc); err != nil {
		return metapb.Quorum{}, errors.Wrapf(err, "create raft group for tablet %d", g.conf.TabletID)
	}

	select {
	case <-g.electedCh:
	case <-time.After(g.conf.ElectTimeout):
		// leave the group removable so Start can be retried
		g.conf.RaftServer.RemoveRaft(g.conf.TabletID)
		return metapb.Quorum{}, errors.Errorf("tablet %d elected no leader within %v", g.conf.TabletID, g.conf.ElectTimeout)
	}

	g.mu.RLock()
	agreed := g.quorum.Clone()
	g.mu.RUnlock()
	return agreed, nil
}

// Replicate implements consensus.Consensus.
func (g *Group) Replicate(ctx context.Context, payload []byte) (*consensus.Future, error) {
	g.mu.RLock()
	stopped := g.stopped
	g.mu.RUnlock()
	if stopped {
		return nil, consensus.ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	future := consensus.NewFuture()
	raftFuture := g.conf.RaftServer.Submit(g.conf.TabletID, payload)

	go func() {
		respCh, errCh := raftFuture.AsyncResponse()
		select {
		case <-ctx.Done():
			future.Respond(0, ctx.Err())
		case err := <-errCh:
			future.Respond(0, errors.Wrapf(err, "tablet %d proposal", g.conf.TabletID))
		case resp := <-respCh:
			index, _ := resp.(uint64)
			future.Respond(index, nil)
		}
	}()

	return future, nil
}

// Shutdown implements consensus.Consensus.
func (g *Group) Shutdown() error {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()

	var err error
	g.removeOnce.Do(func() {
		err = g.conf.RaftServer.RemoveRaft(g.conf.TabletID)
	})
	return err
}

// Apply implements the raft state machine interface.
func (g *Group) Apply(command []byte, index uint64) (interface{}, error) {
	if g.conf.OnCommit != nil {
		if err := g.conf.OnCommit(command, index); err != nil {
			return nil, err
		}
	}
	return index, nil
}

// ApplyMemberChange implements the raft state machine interface.
func (g *Group) ApplyMemberChange(cc *raftproto.ConfChange, index uint64) (interface{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch cc.Type {
	case raftproto.ConfAddNode:
		if _, ok := g.quorum.Peer(cc.Peer.ID); ok {
			break
		}
		g.quorum.SeqNo++
		g.quorum.Peers = append(g.quorum.Peers, metapb.QuorumPeer{ID: cc.Peer.ID})

	case raftproto.ConfRemoveNode:
		g.quorum.SeqNo++
		members := make([]metapb.QuorumPeer, 0, len(g.quorum.Peers))
		for _, member := range g.quorum.Peers {
			if member.ID != cc.Peer.ID {
				members = append(members, member)
			}
		}
		g.quorum.Peers = members
		if g.conf.Resolver != nil {
			g.conf.Resolver.DeleteNode(cc.Peer.ID)
		}

	default:
	}

	return index, nil
}

// Snapshot implements the raft state machine interface.
func (g *Group) Snapshot() (raftproto.Snapshot, error) {
	return nil, nil
}

// ApplySnapshot implements the raft state machine interface.
func (g *Group) ApplySnapshot(peers []raftproto.Peer, iter raftproto.SnapIterator) error {
	return nil
}

// HandleLeaderChange implements the raft state machine interface.
func (g *Group) HandleLeaderChange(leader uint64) {
	g.mu.Lock()
	if g.leader != leader {
		if leader == g.self.ID {
			log.Info("tablet[%d] elected leader on this node", g.conf.TabletID)
		} else {
			log.Debug("tablet[%d] leader changed from %d to %d", g.conf.TabletID, g.leader, leader)
		}
		g.leader = leader
		for i := range g.quorum.Peers {
			if g.quorum.Peers[i].ID == leader {
				g.quorum.Peers[i].Role = metapb.ROLE_LEADER
			} else {
				g.quorum.Peers[i].Role = metapb.ROLE_FOLLOWER
			}
		}
	}
	g.mu.Unlock()

	if leader != 0 {
		g.electedOnce.Do(func() { close(g.electedCh) })
	}
	if g.conf.OnLeaderChange != nil {
		g.conf.OnLeaderChange(leader)
	}
}

// HandleFatalEvent implements the raft state machine interface.
func (g *Group) HandleFatalEvent(err *raft.FatalError) {
	log.Error("tablet[%d] raft fatal error: %s", g.conf.TabletID, err.Err)
	g.Shutdown()
}
