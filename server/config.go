package server

import (
	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/util/config"
	"go.uber.org/multierr"
)

const (
	defaultRaftHeartbeatInterval = 500
	defaultRaftRetainLogs        = 100000
	defaultRaftReplConcurrency   = 20
	defaultRaftSnapConcurrency   = 15
)

// Config tablet server config
type Config struct {
	AppName    string
	AppVersion string
	NodeID     metapb.NodeID
	DataPath   string

	LogDir    string
	LogModule string
	LogLevel  string

	// ApplyConcurrency is the per-tablet apply pool size, zero for the
	// CPU count.
	ApplyConcurrency int

	// SingleReplica runs tablets without raft; each tablet is its own
	// quorum. Raft addresses are not required in this mode.
	SingleReplica bool

	RaftHeartbeatAddr       string
	RaftHeartbeatInterval   int
	RaftRetainLogs          uint64
	RaftReplicaAddr         string
	RaftReplicaConcurrency  int
	RaftSnapshotConcurrency int
}

// LoadConfig load server config
func LoadConfig(conf *config.Config) (*Config, error) {
	if conf == nil {
		return nil, errors.New("server config not specified")
	}

	c := &Config{
		RaftHeartbeatInterval:   conf.GetInt("raft.heartbeat.interval", defaultRaftHeartbeatInterval),
		RaftRetainLogs:          conf.GetUint64("raft.retain.logs", defaultRaftRetainLogs),
		RaftReplicaConcurrency:  conf.GetInt("raft.replica.concurrency", defaultRaftReplConcurrency),
		RaftSnapshotConcurrency: conf.GetInt("raft.snapshot.concurrency", defaultRaftSnapConcurrency),
		ApplyConcurrency:        conf.GetInt("apply.concurrency", 0),
		SingleReplica:           conf.GetBool("single.replica"),
	}

	var verr error
	if c.AppName = conf.GetString("app.name"); c.AppName == "" {
		verr = multierr.Append(verr, errors.New("app.name not specified"))
	}
	if c.AppVersion = conf.GetString("app.version"); c.AppVersion == "" {
		verr = multierr.Append(verr, errors.New("app.version not specified"))
	}
	if c.NodeID = conf.GetUint64("node.id", 0); c.NodeID == 0 {
		verr = multierr.Append(verr, errors.New("node.id not specified"))
	}
	if c.DataPath = conf.GetString("data.path"); c.DataPath == "" {
		verr = multierr.Append(verr, errors.New("data.path not specified"))
	}

	c.LogDir = conf.GetString("log.dir")
	c.LogModule = conf.GetString("log.module")
	c.LogLevel = conf.GetString("log.level")

	if !c.SingleReplica {
		if c.RaftHeartbeatAddr = conf.GetString("raft.heartbeat.addr"); c.RaftHeartbeatAddr == "" {
			verr = multierr.Append(verr, errors.New("raft.heartbeat.addr not specified"))
		}
		if c.RaftReplicaAddr = conf.GetString("raft.replica.addr"); c.RaftReplicaAddr == "" {
			verr = multierr.Append(verr, errors.New("raft.replica.addr not specified"))
		}
	}

	if verr != nil {
		return nil, verr
	}
	return c, nil
}
