package raftgroup

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tiglabs/raft"
	"github.com/tiglabs/tabletengine/proto/metapb"
)

type nodeRef struct {
	peer     metapb.QuorumPeer
	refCount int
}

// NodeResolver resolve NodeID to raft transport addresses. Tablet quorums
// on the same node share one resolver; membership is reference counted
// because a node may host replicas of many tablets.
type NodeResolver struct {
	sync.RWMutex
	nodes map[metapb.NodeID]*nodeRef
}

// NewNodeResolver create NodeResolver
func NewNodeResolver() *NodeResolver {
	return &NodeResolver{
		nodes: make(map[metapb.NodeID]*nodeRef, 64),
	}
}

// AddNode registers the transport addresses of a quorum member.
func (r *NodeResolver) AddNode(peer metapb.QuorumPeer) {
	r.Lock()
	defer r.Unlock()

	if ref, ok := r.nodes[peer.ID]; ok {
		ref.refCount++
	} else {
		r.nodes[peer.ID] = &nodeRef{peer: peer, refCount: 1}
	}
}

// DeleteNode drops one reference to a quorum member.
func (r *NodeResolver) DeleteNode(id metapb.NodeID) {
	r.Lock()
	defer r.Unlock()

	if ref, ok := r.nodes[id]; ok {
		ref.refCount--
		if ref.refCount <= 0 {
			delete(r.nodes, id)
		}
	}
}

func (r *NodeResolver) getNode(id metapb.NodeID) (metapb.QuorumPeer, error) {
	r.RLock()
	defer r.RUnlock()

	if ref, ok := r.nodes[id]; ok {
		return ref.peer, nil
	}
	return metapb.QuorumPeer{}, errors.Errorf("cannot resolve network address of node %d", id)
}

// NodeAddress resolve NodeID to raft transport addresses.
func (r *NodeResolver) NodeAddress(nodeID uint64, stype raft.SocketType) (string, error) {
	peer, err := r.getNode(nodeID)
	if err != nil {
		return "", err
	}

	switch stype {
	case raft.HeartBeat:
		return peer.RaftAddrs.HeartbeatAddr, nil
	case raft.Replicate:
		return peer.RaftAddrs.ReplicateAddr, nil
	default:
		return "", errors.Errorf("unknown socket type %v", stype)
	}
}
