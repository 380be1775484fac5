package tablet

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/consensus"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/proto/tabletpb"
	"github.com/tiglabs/tabletengine/store/kvstore/btreedb"
	"github.com/tiglabs/tabletengine/wal"
)

// fakeConsensus records proposals in order. With auto=true every proposal
// commits immediately at the next index; otherwise futures stay pending
// until respondAll.
type fakeConsensus struct {
	mu        sync.Mutex
	auto      bool
	agreed    *metapb.Quorum
	stopErr   error
	stopped   bool
	nextIndex uint64
	payloads  [][]byte
	futures   []*consensus.Future
}

func (f *fakeConsensus) Init(self metapb.QuorumPeer, log *wal.Log) error {
	return nil
}

func (f *fakeConsensus) Start(desired metapb.Quorum) (metapb.Quorum, error) {
	if f.agreed != nil {
		return f.agreed.Clone(), nil
	}
	return desired.Clone(), nil
}

func (f *fakeConsensus) Replicate(ctx context.Context, payload []byte) (*consensus.Future, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return nil, consensus.ErrStopped
	}

	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	future := consensus.NewFuture()
	if f.auto {
		f.nextIndex++
		future.Respond(f.nextIndex, nil)
	} else {
		f.futures = append(f.futures, future)
	}
	return future, nil
}

func (f *fakeConsensus) Shutdown() error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return f.stopErr
}

func (f *fakeConsensus) proposals() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeConsensus) respondAll(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, future := range f.futures {
		if err != nil {
			future.Respond(0, err)
			continue
		}
		f.nextIndex++
		future.Respond(f.nextIndex, nil)
	}
	f.futures = nil
}

func (f *fakeConsensus) proposedKeys(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for _, payload := range f.payloads {
		var cmd tabletpb.Command
		if err := cmd.Unmarshal(payload); err != nil {
			t.Fatalf("decode proposal: %v", err)
		}
		if cmd.Type == tabletpb.CmdType_WRITE {
			for _, row := range cmd.Write.Rows {
				keys = append(keys, string(row.Key))
			}
		}
	}
	return keys
}

func newTestPeer(t *testing.T, fake *fakeConsensus) *Peer {
	t.Helper()

	meta, err := OpenMeta(filepath.Join(t.TempDir(), "meta.db"), 1)
	if err != nil {
		t.Fatalf("open meta: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	self := metapb.QuorumPeer{ID: 1, Addr: "127.0.0.1:8800", Role: metapb.ROLE_LEADER}
	meta.SetQuorum(metapb.Quorum{SeqNo: 1, Peers: []metapb.QuorumPeer{self}})

	tb, err := NewTablet(meta, btreedb.New())
	if err != nil {
		t.Fatalf("new tablet: %v", err)
	}

	return NewPeer(tb, self, &wal.Log{}, PeerConfig{
		ApplyConcurrency: 2,
		NewConsensus: func() (consensus.Consensus, error) {
			return fake, nil
		},
	})
}

func startedPeer(t *testing.T, fake *fakeConsensus) *Peer {
	t.Helper()

	p := newTestPeer(t, fake)
	if err := p.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(p.Shutdown)
	return p
}

func waitResult(t *testing.T, r *TxnResult) error {
	t.Helper()
	select {
	case <-r.Done():
		return r.Err()
	case <-time.After(3 * time.Second):
		t.Fatal("transaction did not finish")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func writeRow(key, col, val string) tabletpb.Row {
	return tabletpb.Row{
		Key:     []byte(key),
		Columns: []tabletpb.Column{{Name: col, Value: []byte(val)}},
	}
}

func TestInitPreconditions(t *testing.T) {
	p := NewPeer(nil, metapb.QuorumPeer{ID: 1}, &wal.Log{}, PeerConfig{})
	if err := p.Init(); errors.Cause(err) != ErrPrecondition {
		t.Fatalf("init without tablet returned %v", err)
	}
}

func TestInitOnlyOnce(t *testing.T) {
	p := newTestPeer(t, &fakeConsensus{auto: true})
	if err := p.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer p.Shutdown()

	if err := p.Init(); errors.Cause(err) != ErrIllegalState {
		t.Fatalf("second init returned %v", err)
	}
}

func TestInitRetriesAfterConsensusFailure(t *testing.T) {
	calls := 0
	p := NewPeer(newTestTablet(t), metapb.QuorumPeer{ID: 1}, &wal.Log{}, PeerConfig{
		NewConsensus: func() (consensus.Consensus, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("raft transport not ready")
			}
			return &fakeConsensus{auto: true}, nil
		},
	})

	if err := p.Init(); err == nil {
		t.Fatal("first init succeeded with failing consensus factory")
	}
	if p.State() != metapb.TS_CONFIGURING {
		t.Fatalf("state after failed init = %s", p.State())
	}

	if err := p.Init(); err != nil {
		t.Fatalf("retry init: %v", err)
	}
	p.Shutdown()
}

func TestSubmitBeforeStart(t *testing.T) {
	p := newTestPeer(t, &fakeConsensus{auto: true})
	if err := p.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer p.Shutdown()

	wctx := &WriteTransactionContext{Rows: []tabletpb.Row{writeRow("k", "c", "v")}}
	if err := p.SubmitWrite(wctx); errors.Cause(err) != ErrIllegalState {
		t.Fatalf("submit before start returned %v", err)
	}
}

func TestStartRequiresInit(t *testing.T) {
	p := newTestPeer(t, &fakeConsensus{auto: true})
	if err := p.Start(); errors.Cause(err) != ErrIllegalState {
		t.Fatalf("start before init returned %v", err)
	}
}

func TestWriteReplicatesAndApplies(t *testing.T) {
	fake := &fakeConsensus{auto: true}
	p := startedPeer(t, fake)

	wctx := &WriteTransactionContext{Rows: []tabletpb.Row{writeRow("user-1", "name", "ada")}}
	if err := p.SubmitWrite(wctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := waitResult(t, wctx.Result()); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cols, err := p.Tablet().GetRow([]byte("user-1"))
	if err != nil || len(cols) != 1 {
		t.Fatalf("row readback: %v, %v", cols, err)
	}
	if cols[0].Name != "name" || !bytes.Equal(cols[0].Value, []byte("ada")) {
		t.Fatalf("unexpected columns %v", cols)
	}
	if got := p.Tablet().AppliedIndex(); got != 1 {
		t.Fatalf("applied index = %d, want 1", got)
	}
}

func TestProposalOrderFollowsSubmissionOrder(t *testing.T) {
	fake := &fakeConsensus{auto: true}
	p := startedPeer(t, fake)

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	ctxs := make([]*WriteTransactionContext, 0, len(keys))
	for _, k := range keys {
		wctx := &WriteTransactionContext{Rows: []tabletpb.Row{writeRow(k, "c", "v")}}
		if err := p.SubmitWrite(wctx); err != nil {
			t.Fatalf("submit %s: %v", k, err)
		}
		ctxs = append(ctxs, wctx)
	}
	for i, wctx := range ctxs {
		if err := waitResult(t, wctx.Result()); err != nil {
			t.Fatalf("write %s failed: %v", keys[i], err)
		}
	}

	proposed := fake.proposedKeys(t)
	if len(proposed) != len(keys) {
		t.Fatalf("proposed %d entries, want %d", len(proposed), len(keys))
	}
	for i, k := range keys {
		if proposed[i] != k {
			t.Fatalf("proposal %d is %s, want %s", i, proposed[i], k)
		}
	}
}

func TestAlterSchema(t *testing.T) {
	fake := &fakeConsensus{auto: true}
	p := startedPeer(t, fake)

	actx := &AlterSchemaTransactionContext{SchemaVersion: 2, AddColumns: []string{"age"}}
	if err := p.SubmitAlterSchema(actx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := waitResult(t, actx.Result()); err != nil {
		t.Fatalf("alter schema failed: %v", err)
	}
	if v := p.Tablet().Meta().SchemaVersion(); v != 2 {
		t.Fatalf("schema version = %d, want 2", v)
	}

	stale := &AlterSchemaTransactionContext{SchemaVersion: 2}
	if err := p.SubmitAlterSchema(stale); err != nil {
		t.Fatalf("submit stale: %v", err)
	}
	if err := waitResult(t, stale.Result()); err == nil {
		t.Fatal("stale schema version was accepted")
	}
}

func TestChangeConfigPersistsQuorum(t *testing.T) {
	fake := &fakeConsensus{auto: true}
	p := startedPeer(t, fake)

	next := metapb.Quorum{Peers: []metapb.QuorumPeer{
		{ID: 1, Addr: "127.0.0.1:8800", Role: metapb.ROLE_LEADER},
		{ID: 2, Addr: "127.0.0.1:8801"},
	}}
	cctx := &ChangeConfigTransactionContext{NewQuorum: next}
	if err := p.SubmitChangeConfig(cctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := waitResult(t, cctx.Result()); err != nil {
		t.Fatalf("change config failed: %v", err)
	}

	got := p.Tablet().Meta().Quorum()
	if len(got.Peers) != 2 || got.SeqNo != 2 {
		t.Fatalf("persisted quorum seq %d with %d peers", got.SeqNo, len(got.Peers))
	}
}

func TestStartWaitsForPendingChangeConfig(t *testing.T) {
	fake := &fakeConsensus{}
	p := startedPeer(t, fake)

	cctx := &ChangeConfigTransactionContext{NewQuorum: metapb.Quorum{
		Peers: []metapb.QuorumPeer{{ID: 1, Role: metapb.ROLE_LEADER}},
	}}
	if err := p.SubmitChangeConfig(cctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return fake.proposals() == 1 })

	startErr := make(chan error, 1)
	go func() { startErr <- p.Start() }()

	select {
	case err := <-startErr:
		t.Fatalf("start returned %v while config change pending", err)
	case <-time.After(100 * time.Millisecond):
	}

	fake.respondAll(nil)
	if err := waitResult(t, cctx.Result()); err != nil {
		t.Fatalf("change config failed: %v", err)
	}

	select {
	case err := <-startErr:
		if errors.Cause(err) != ErrIllegalState {
			t.Fatalf("second start returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("start still blocked after config change finished")
	}
}

func TestShutdownAbortsUnreplicated(t *testing.T) {
	fake := &fakeConsensus{}
	p := startedPeer(t, fake)

	wctx := &WriteTransactionContext{Rows: []tabletpb.Row{writeRow("k", "c", "v")}}
	if err := p.SubmitWrite(wctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return fake.proposals() == 1 })

	p.Shutdown()

	if err := waitResult(t, wctx.Result()); err != ErrAbortedByShutdown {
		t.Fatalf("pending write finished with %v, want ErrAbortedByShutdown", err)
	}
	if p.State() != metapb.TS_SHUTDOWN {
		t.Fatalf("state = %s after shutdown", p.State())
	}
}

func TestCancelledProposalReportsAbort(t *testing.T) {
	fake := &fakeConsensus{}
	p := startedPeer(t, fake)

	wctx := &WriteTransactionContext{Rows: []tabletpb.Row{writeRow("k", "c", "v")}}
	if err := p.SubmitWrite(wctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return fake.proposals() == 1 })

	fake.respondAll(context.Canceled)
	if err := waitResult(t, wctx.Result()); err != ErrAbortedByShutdown {
		t.Fatalf("cancelled proposal finished with %v, want ErrAbortedByShutdown", err)
	}
}

func TestShutdownDrainsReplicated(t *testing.T) {
	fake := &fakeConsensus{}
	p := startedPeer(t, fake)

	wctx := &WriteTransactionContext{Rows: []tabletpb.Row{writeRow("k", "c", "v")}}
	if err := p.SubmitWrite(wctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, func() bool { return fake.proposals() == 1 })

	fake.respondAll(nil)
	p.Shutdown()

	if err := waitResult(t, wctx.Result()); err != nil {
		t.Fatalf("replicated write finished with %v", err)
	}
	if cols, _ := p.Tablet().GetRow([]byte("k")); len(cols) != 1 {
		t.Fatal("replicated write was not applied")
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	fake := &fakeConsensus{auto: true}
	p := startedPeer(t, fake)
	p.Shutdown()

	wctx := &WriteTransactionContext{Rows: []tabletpb.Row{writeRow("k", "c", "v")}}
	if err := p.SubmitWrite(wctx); errors.Cause(err) != ErrIllegalState {
		t.Fatalf("submit after shutdown returned %v", err)
	}
	if n := len(p.OutstandingTransactions()); n != 0 {
		t.Fatalf("%d transactions outstanding after shutdown", n)
	}
}

func TestShutdownToleratesConsensusFailure(t *testing.T) {
	fake := &fakeConsensus{auto: true, stopErr: errors.New("transport torn down")}
	p := startedPeer(t, fake)

	done := make(chan struct{})
	go func() {
		p.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not complete with failing consensus")
	}
	if p.State() != metapb.TS_SHUTDOWN {
		t.Fatalf("state = %s after shutdown", p.State())
	}
}

func TestAgreedQuorumPersisted(t *testing.T) {
	agreed := metapb.Quorum{SeqNo: 7, Peers: []metapb.QuorumPeer{
		{ID: 1, Role: metapb.ROLE_LEADER},
		{ID: 3, Role: metapb.ROLE_FOLLOWER},
	}}
	fake := &fakeConsensus{auto: true, agreed: &agreed}
	p := startedPeer(t, fake)

	got := p.Tablet().Meta().Quorum()
	if got.SeqNo != 7 || len(got.Peers) != 2 {
		t.Fatalf("persisted quorum seq %d with %d peers", got.SeqNo, len(got.Peers))
	}
	leader, ok := got.Leader()
	if !ok || leader.ID != 1 {
		t.Fatalf("leader = %v, %v", leader, ok)
	}
}
