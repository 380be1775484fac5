package tablet

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/consensus"
	"github.com/tiglabs/tabletengine/consensus/local"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/util/executor"
	"github.com/tiglabs/tabletengine/util/log"
	"github.com/tiglabs/tabletengine/wal"
)

// PeerConfig carries the tunables of one tablet peer.
type PeerConfig struct {
	// ApplyConcurrency is the worker count of the apply pool. Zero means
	// one worker per CPU.
	ApplyConcurrency int

	// NewConsensus builds the replication instance during Init. Defaults
	// to single-replica local consensus.
	NewConsensus func() (consensus.Consensus, error)
}

func (c *PeerConfig) adjust() {
	if c.ApplyConcurrency <= 0 {
		c.ApplyConcurrency = runtime.NumCPU()
	}
	if c.NewConsensus == nil {
		c.NewConsensus = func() (consensus.Consensus, error) {
			return local.New(), nil
		}
	}
}

// Peer coordinates replication and apply for one tablet. Submissions pass
// through three stages: prepare runs single threaded, replicate goes to
// consensus, and apply runs on the worker pool once the entry commits.
//
// Lifecycle: NewPeer -> Init -> Start -> (submissions) -> Shutdown.
type Peer struct {
	conf PeerConfig

	state  int32
	tablet *Tablet
	self   metapb.QuorumPeer
	wlog   *wal.Log

	consensus consensus.Consensus

	prepareExec *executor.Executor
	applyExec   *executor.Executor

	// configMu serializes Start against submitted config changes.
	configMu sync.Mutex

	// prepareReplicateMu spans prepare completion through proposal so the
	// replicated log carries entries in prepare order.
	prepareReplicateMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	// txnMu guards state transitions and the registry, making the
	// submission gate atomic with registration and serializing Init.
	txnMu  sync.Mutex
	txns   map[uint64]*transaction
	txnSeq uint64
	txnWG  sync.WaitGroup

	shutdownOnce sync.Once
}

// NewPeer create a peer over an opened tablet and its durable log. The
// peer starts in BOOTSTRAPPING and must be Init'ed then Start'ed before
// accepting submissions.
func NewPeer(tablet *Tablet, self metapb.QuorumPeer, wlog *wal.Log, conf PeerConfig) *Peer {
	conf.adjust()

	ctx, cancel := context.WithCancel(context.Background())
	return &Peer{
		conf:   conf,
		state:  int32(metapb.TS_BOOTSTRAPPING),
		tablet: tablet,
		self:   self,
		wlog:   wlog,
		ctx:    ctx,
		cancel: cancel,
		txns:   make(map[uint64]*transaction),
	}
}

// State returns the current lifecycle state.
func (p *Peer) State() metapb.TabletState {
	return metapb.TabletState(atomic.LoadInt32(&p.state))
}

func (p *Peer) setState(s metapb.TabletState) {
	atomic.StoreInt32(&p.state, int32(s))
}

func (p *Peer) tabletID() metapb.TabletID {
	if p.tablet == nil {
		return 0
	}
	return p.tablet.Meta().ID()
}

// Init creates the consensus instance and the stage executors. It may be
// called while bootstrapping is still in flight; the peer only starts
// serving after Start. A failed Init leaves the peer in CONFIGURING and
// may be retried.
func (p *Peer) Init() error {
	if p.tablet == nil {
		return errors.Wrap(ErrPrecondition, "init requires a tablet")
	}
	if p.wlog == nil {
		return errors.Wrap(ErrPrecondition, "init requires a durable log")
	}

	p.txnMu.Lock()
	defer p.txnMu.Unlock()

	switch p.State() {
	case metapb.TS_BOOTSTRAPPING:
	case metapb.TS_CONFIGURING:
		if p.consensus != nil {
			return errors.Wrap(ErrIllegalState, "tablet peer already initialized")
		}
	default:
		return errors.Wrapf(ErrIllegalState, "cannot init from state %s", p.State())
	}
	p.setState(metapb.TS_CONFIGURING)

	c, err := p.conf.NewConsensus()
	if err != nil {
		return errors.Wrap(err, "create consensus")
	}
	if err := c.Init(p.self, p.wlog); err != nil {
		return errors.Wrap(err, "init consensus")
	}

	p.consensus = c
	p.tablet.SetConsensus(c)
	p.prepareExec = executor.New("prepare", 1)
	p.applyExec = executor.New("apply", p.conf.ApplyConcurrency)

	log.Info("peer of tablet[%d] initialized, apply concurrency %d", p.tabletID(), p.conf.ApplyConcurrency)
	return nil
}

// Start runs consensus agreement over the persisted quorum, records the
// quorum the replica set actually formed and opens the peer for
// submissions. It holds the config lock for the whole call so a config
// change submitted concurrently cannot interleave.
func (p *Peer) Start() error {
	p.configMu.Lock()
	defer p.configMu.Unlock()

	if p.State() != metapb.TS_CONFIGURING {
		return errors.Wrapf(ErrIllegalState, "cannot start from state %s", p.State())
	}

	desired := p.tablet.Meta().Quorum()
	agreed, err := p.consensus.Start(desired)
	if err != nil {
		return errors.Wrap(err, "start consensus")
	}

	p.tablet.Meta().SetQuorum(agreed)
	if err := p.tablet.Meta().Flush(); err != nil {
		return err
	}

	p.txnMu.Lock()
	p.setState(metapb.TS_RUNNING)
	p.txnMu.Unlock()

	log.Info("peer of tablet[%d] running, quorum seq %d with %d peers", p.tabletID(), agreed.SeqNo, len(agreed.Peers))
	return nil
}

// Shutdown stops the peer. New submissions are rejected immediately,
// transactions that have not replicated abort with ErrAbortedByShutdown,
// and replicated transactions are drained before Shutdown returns. It is
// idempotent and never fails because of consensus errors.
func (p *Peer) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.txnMu.Lock()
		p.setState(metapb.TS_SHUTDOWN)
		p.txnMu.Unlock()

		p.cancel()

		if p.consensus != nil {
			if err := p.consensus.Shutdown(); err != nil {
				log.Warn("peer of tablet[%d] consensus shutdown: %v", p.tabletID(), err)
			}
		}
		if p.prepareExec != nil {
			p.prepareExec.Shutdown(true)
		}

		// The apply pool stays up until every registered transaction has
		// resolved, so entries that committed before the cutoff still apply.
		p.txnWG.Wait()
		if p.applyExec != nil {
			p.applyExec.Shutdown(true)
		}
		log.Info("peer of tablet[%d] shut down", p.tabletID())
	})
}

// Tablet returns the underlying tablet.
func (p *Peer) Tablet() *Tablet {
	return p.tablet
}

// OutstandingTransactions returns the names of transactions registered
// but not yet finished, for status reporting.
func (p *Peer) OutstandingTransactions() []string {
	p.txnMu.Lock()
	defer p.txnMu.Unlock()

	names := make([]string, 0, len(p.txns))
	for _, txn := range p.txns {
		names = append(names, txn.variant.Name())
	}
	return names
}

// SubmitWrite submits a row write. The returned result resolves once the
// write is replicated and applied.
func (p *Peer) SubmitWrite(wctx *WriteTransactionContext) error {
	return p.submit(newLeaderWriteTransaction(p.tablet, wctx), nil)
}

// SubmitAlterSchema submits a schema version change.
func (p *Peer) SubmitAlterSchema(actx *AlterSchemaTransactionContext) error {
	return p.submit(newLeaderAlterSchemaTransaction(p.tablet, actx), nil)
}

// SubmitChangeConfig submits a quorum membership change. The transaction
// takes the config lock before replicating, excluding a concurrent Start.
func (p *Peer) SubmitChangeConfig(cctx *ChangeConfigTransactionContext) error {
	return p.submit(newLeaderChangeConfigTransaction(p.tablet, cctx), &p.configMu)
}

// submit gates on the RUNNING state and registers the transaction in one
// critical section, so a shutdown that wins the race either rejects the
// submission or waits for it.
func (p *Peer) submit(variant leaderTransaction, configMu *sync.Mutex) error {
	p.txnMu.Lock()
	if p.State() != metapb.TS_RUNNING {
		p.txnMu.Unlock()
		return errors.Wrapf(ErrIllegalState, "tablet[%d] in state %s", p.tabletID(), p.State())
	}

	p.txnSeq++
	txn := &transaction{
		id:       p.txnSeq,
		peer:     p,
		variant:  variant,
		configMu: configMu,
	}
	p.txns[txn.id] = txn
	p.txnWG.Add(1)
	p.txnMu.Unlock()

	return txn.execute()
}

func (p *Peer) removeTxn(id uint64) {
	p.txnMu.Lock()
	delete(p.txns, id)
	p.txnMu.Unlock()
}
