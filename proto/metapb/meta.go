package metapb

type (
	// NodeID is a custom type for node ID
	NodeID = uint64
	// TabletID is a custom type for tablet ID
	TabletID = uint64
	// SchemaVersion is a custom type for tablet schema version
	SchemaVersion = uint32
)

// TabletState is the lifecycle state of a tablet peer.
type TabletState int32

const (
	// TS_BOOTSTRAPPING initial state, before storage and log are attached
	TS_BOOTSTRAPPING TabletState = iota
	// TS_CONFIGURING storage, log and consensus are wired, quorum not yet agreed
	TS_CONFIGURING
	// TS_RUNNING quorum agreed and persisted, submissions accepted
	TS_RUNNING
	// TS_SHUTDOWN terminal
	TS_SHUTDOWN
)

func (s TabletState) String() string {
	switch s {
	case TS_BOOTSTRAPPING:
		return "BOOTSTRAPPING"
	case TS_CONFIGURING:
		return "CONFIGURING"
	case TS_RUNNING:
		return "RUNNING"
	case TS_SHUTDOWN:
		return "SHUTDOWN"
	}
	return "UNKNOWN"
}

// PeerRole is the role a replica plays within a tablet quorum.
type PeerRole int32

const (
	ROLE_FOLLOWER PeerRole = iota
	ROLE_LEADER
	ROLE_CANDIDATE
	ROLE_LEARNER
)

// RaftAddrs raft transport addresses of a node
type RaftAddrs struct {
	HeartbeatAddr string `json:"heartbeat_addr"`
	ReplicateAddr string `json:"replicate_addr"`
}

// QuorumPeer is one replica identity within a tablet quorum.
type QuorumPeer struct {
	ID        NodeID    `json:"id"`
	Addr      string    `json:"addr"`
	RaftAddrs RaftAddrs `json:"raft_addrs"`
	Role      PeerRole  `json:"role"`
}

// Quorum is the set of replicas participating in consensus for a tablet,
// and their roles.
type Quorum struct {
	SeqNo uint64       `json:"seq_no"`
	Peers []QuorumPeer `json:"peers"`
}

// Peer returns the member with the given node ID.
func (q Quorum) Peer(id NodeID) (QuorumPeer, bool) {
	for _, p := range q.Peers {
		if p.ID == id {
			return p, true
		}
	}
	return QuorumPeer{}, false
}

// Leader returns the member currently marked leader.
func (q Quorum) Leader() (QuorumPeer, bool) {
	for _, p := range q.Peers {
		if p.Role == ROLE_LEADER {
			return p, true
		}
	}
	return QuorumPeer{}, false
}

// Clone returns a deep copy of the quorum.
func (q Quorum) Clone() Quorum {
	c := Quorum{SeqNo: q.SeqNo}
	if len(q.Peers) > 0 {
		c.Peers = make([]QuorumPeer, len(q.Peers))
		copy(c.Peers, q.Peers)
	}
	return c
}
