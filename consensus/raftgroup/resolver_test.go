package raftgroup

import (
	"testing"

	"github.com/tiglabs/raft"
	"github.com/tiglabs/tabletengine/proto/metapb"
)

func TestResolveAddresses(t *testing.T) {
	r := NewNodeResolver()
	r.AddNode(metapb.QuorumPeer{
		ID: 2,
		RaftAddrs: metapb.RaftAddrs{
			HeartbeatAddr: "127.0.0.1:8810",
			ReplicateAddr: "127.0.0.1:8811",
		},
	})

	addr, err := r.NodeAddress(2, raft.HeartBeat)
	if err != nil || addr != "127.0.0.1:8810" {
		t.Fatalf("heartbeat addr = %q, %v", addr, err)
	}
	addr, err = r.NodeAddress(2, raft.Replicate)
	if err != nil || addr != "127.0.0.1:8811" {
		t.Fatalf("replicate addr = %q, %v", addr, err)
	}
	if _, err := r.NodeAddress(9, raft.HeartBeat); err == nil {
		t.Fatal("unknown node resolved")
	}
}

func TestDeleteNodeRefCounted(t *testing.T) {
	r := NewNodeResolver()
	peer := metapb.QuorumPeer{ID: 5, RaftAddrs: metapb.RaftAddrs{HeartbeatAddr: "127.0.0.1:8810"}}

	// two tablets share the node
	r.AddNode(peer)
	r.AddNode(peer)

	r.DeleteNode(5)
	if _, err := r.NodeAddress(5, raft.HeartBeat); err != nil {
		t.Fatalf("node dropped while still referenced: %v", err)
	}

	r.DeleteNode(5)
	if _, err := r.NodeAddress(5, raft.HeartBeat); err == nil {
		t.Fatal("node survived final dereference")
	}
}
