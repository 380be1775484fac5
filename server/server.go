package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tiglabs/raft"
	"github.com/tiglabs/raft/logger"
	"github.com/tiglabs/tabletengine/consensus"
	"github.com/tiglabs/tabletengine/consensus/local"
	"github.com/tiglabs/tabletengine/consensus/raftgroup"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/store/kvstore/badgerdb"
	"github.com/tiglabs/tabletengine/tablet"
	"github.com/tiglabs/tabletengine/util/config"
	"github.com/tiglabs/tabletengine/util/log"
	"github.com/tiglabs/tabletengine/wal"
)

// Server hosts tablet peers on one node. All raft groups share the
// node-wide raft server and transport.
type Server struct {
	conf *Config
	self metapb.QuorumPeer

	resolver   *raftgroup.NodeResolver
	raftServer *raft.RaftServer

	tablets sync.Map // metapb.TabletID -> *tabletHandle

	stopOnce sync.Once
	quit     chan struct{}
}

type tabletHandle struct {
	peer *tablet.Peer
	wlog *wal.Log
}

// NewServer create server instance
func NewServer(conf *config.Config) (*Server, error) {
	serverConf, err := LoadConfig(conf)
	if err != nil {
		return nil, err
	}

	s := &Server{
		conf: serverConf,
		self: metapb.QuorumPeer{
			ID: serverConf.NodeID,
			RaftAddrs: metapb.RaftAddrs{
				HeartbeatAddr: serverConf.RaftHeartbeatAddr,
				ReplicateAddr: serverConf.RaftReplicaAddr,
			},
		},
		quit: make(chan struct{}),
	}

	if !serverConf.SingleReplica {
		logger.SetLogger(log.NewRaftLogger())

		s.resolver = raftgroup.NewNodeResolver()
		rc := raft.DefaultConfig()
		rc.NodeID = serverConf.NodeID
		rc.RetainLogs = serverConf.RaftRetainLogs
		rc.TickInterval = time.Millisecond * time.Duration(serverConf.RaftHeartbeatInterval)
		rc.HeartbeatAddr = serverConf.RaftHeartbeatAddr
		rc.ReplicateAddr = serverConf.RaftReplicaAddr
		rc.MaxReplConcurrency = serverConf.RaftReplicaConcurrency
		rc.MaxSnapConcurrency = serverConf.RaftSnapshotConcurrency
		rc.Resolver = s.resolver

		rs, err := raft.NewRaftServer(rc)
		if err != nil {
			return nil, errors.Wrap(err, "boot raft server")
		}
		s.raftServer = rs
	}

	return s, nil
}

// OpenTablet opens the tablet's storage and log, runs the peer through
// Init and Start and registers it. The desired quorum only seeds a tablet
// opened for the first time; afterwards the persisted quorum wins.
func (s *Server) OpenTablet(id metapb.TabletID, desired metapb.Quorum) (*tablet.Peer, error) {
	if id == 0 {
		return nil, errors.New("tablet id not specified")
	}
	if _, ok := s.tablets.Load(id); ok {
		return nil, errors.Errorf("tablet %d already open", id)
	}

	root := filepath.Join(s.conf.DataPath, fmt.Sprintf("tablet-%d", id))
	if err := os.MkdirAll(filepath.Join(root, "data"), 0755); err != nil {
		return nil, errors.Wrapf(err, "create tablet %d dirs", id)
	}

	meta, err := tablet.OpenMeta(filepath.Join(root, "meta.db"), id)
	if err != nil {
		return nil, err
	}
	if len(meta.Quorum().Peers) == 0 {
		meta.SetQuorum(desired)
	}

	engine, err := badgerdb.New(&badgerdb.StoreConfig{Path: filepath.Join(root, "data"), Sync: true})
	if err != nil {
		meta.Close()
		return nil, errors.Wrapf(err, "open tablet %d engine", id)
	}

	wlog, err := wal.Open(filepath.Join(root, "wal"))
	if err != nil {
		engine.Close()
		meta.Close()
		return nil, err
	}

	tb, err := tablet.NewTablet(meta, engine)
	if err != nil {
		wlog.Close()
		engine.Close()
		meta.Close()
		return nil, err
	}

	peer := tablet.NewPeer(tb, s.self, wlog, tablet.PeerConfig{
		ApplyConcurrency: s.conf.ApplyConcurrency,
		NewConsensus:     s.newConsensus(id, tb),
	})
	if err := peer.Init(); err != nil {
		s.closeTabletStorage(id, &tabletHandle{peer: peer, wlog: wlog})
		return nil, err
	}
	if err := peer.Start(); err != nil {
		peer.Shutdown()
		s.closeTabletStorage(id, &tabletHandle{peer: peer, wlog: wlog})
		return nil, err
	}

	handle := &tabletHandle{peer: peer, wlog: wlog}
	if _, loaded := s.tablets.LoadOrStore(id, handle); loaded {
		peer.Shutdown()
		s.closeTabletStorage(id, handle)
		return nil, errors.Errorf("tablet %d already open", id)
	}

	log.Info("tablet[%d] open, state %s", id, peer.State())
	return peer, nil
}

func (s *Server) newConsensus(id metapb.TabletID, tb *tablet.Tablet) func() (consensus.Consensus, error) {
	if s.conf.SingleReplica {
		return func() (consensus.Consensus, error) {
			return local.New(), nil
		}
	}
	return func() (consensus.Consensus, error) {
		return raftgroup.New(raftgroup.Config{
			TabletID:   id,
			RaftServer: s.raftServer,
			Resolver:   s.resolver,
			Applied:    tb.AppliedIndex(),
			OnCommit:   tb.ApplyCommandData,
			OnLeaderChange: func(leader uint64) {
				log.Info("tablet[%d] leader is now node %d", id, leader)
			},
		})
	}
}

// GetTablet returns the open peer of a tablet, nil when not hosted here.
func (s *Server) GetTablet(id metapb.TabletID) *tablet.Peer {
	if v, ok := s.tablets.Load(id); ok {
		return v.(*tabletHandle).peer
	}
	return nil
}

// CloseTablet shuts the peer down and releases the tablet's storage.
func (s *Server) CloseTablet(id metapb.TabletID) error {
	v, ok := s.tablets.Load(id)
	if !ok {
		return errors.Errorf("tablet %d not open", id)
	}
	s.tablets.Delete(id)

	handle := v.(*tabletHandle)
	handle.peer.Shutdown()
	s.closeTabletStorage(id, handle)
	return nil
}

func (s *Server) closeTabletStorage(id metapb.TabletID, handle *tabletHandle) {
	if handle.wlog != nil {
		handle.wlog.Close()
	}
	tb := handle.peer.Tablet()
	if tb == nil {
		return
	}
	if err := tb.Engine().Close(); err != nil {
		log.Warn("tablet[%d] close engine: %v", id, err)
	}
	if err := tb.Meta().Close(); err != nil {
		log.Warn("tablet[%d] close meta: %v", id, err)
	}
}

// Stop shuts down every hosted tablet and the raft transport.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)

		s.tablets.Range(func(key, value interface{}) bool {
			id := key.(metapb.TabletID)
			handle := value.(*tabletHandle)
			s.tablets.Delete(id)
			handle.peer.Shutdown()
			s.closeTabletStorage(id, handle)
			return true
		})

		if s.raftServer != nil {
			s.raftServer.Stop()
		}
		log.Info("server on node %d stopped", s.conf.NodeID)
	})
}
