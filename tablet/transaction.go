package tablet

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/consensus"
	"github.com/tiglabs/tabletengine/proto/tabletpb"
	"github.com/tiglabs/tabletengine/util/executor"
	"github.com/tiglabs/tabletengine/util/log"
)

// shutdownAbort folds the cancellation errors the pipeline can observe
// while the peer is shutting down into the one outcome submitters see.
func shutdownAbort(err error) error {
	switch errors.Cause(err) {
	case context.Canceled, consensus.ErrStopped, executor.ErrStopped:
		return ErrAbortedByShutdown
	}
	return err
}

// TxnResult lets a submitter wait for one transaction to finish.
type TxnResult struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newTxnResult() *TxnResult {
	return &TxnResult{done: make(chan struct{})}
}

// Done is closed when the transaction has applied or aborted.
func (r *TxnResult) Done() <-chan struct{} {
	return r.done
}

// Err returns the outcome; only valid after Done is closed.
func (r *TxnResult) Err() error {
	return r.err
}

func (r *TxnResult) finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// leaderTransaction is one submitted operation driven through the
// prepare, replicate and apply stages.
type leaderTransaction interface {
	// Prepare validates the request and builds the command to replicate.
	// It runs on the single prepare worker.
	Prepare() (*tabletpb.Command, error)

	// Apply executes the committed command at the assigned log index. It
	// runs on the apply pool.
	Apply(index uint64) error

	// Result returns the submitter-visible result handle.
	Result() *TxnResult

	// Name identifies the transaction kind in logs and status output.
	Name() string
}

// transaction carries one leaderTransaction through the pipeline and owns
// its registry entry and optional config lock.
type transaction struct {
	id       uint64
	peer     *Peer
	variant  leaderTransaction
	configMu *sync.Mutex

	configLocked bool
	payload      []byte
}

// execute hands the transaction to the prepare worker. A stopped executor
// means shutdown already began, so the transaction aborts.
func (t *transaction) execute() error {
	if err := t.peer.prepareExec.Submit(t.prepareTask); err != nil {
		err = shutdownAbort(err)
		t.finish(err)
		return err
	}
	return nil
}

// prepareTask runs single threaded. It prepares, then holds the proposal
// lock across the Replicate call so log order matches prepare order.
func (t *transaction) prepareTask() {
	if t.peer.ctx.Err() != nil {
		t.finish(ErrAbortedByShutdown)
		return
	}

	cmd, err := t.variant.Prepare()
	if err != nil {
		t.finish(err)
		return
	}

	t.payload, err = cmd.Marshal()
	if err != nil {
		t.finish(err)
		return
	}

	if t.configMu != nil {
		t.configMu.Lock()
		t.configLocked = true
	}

	t.peer.prepareReplicateMu.Lock()
	future, err := t.peer.consensus.Replicate(t.peer.ctx, t.payload)
	t.peer.prepareReplicateMu.Unlock()
	if err != nil {
		t.finish(shutdownAbort(err))
		return
	}

	go t.replicateWait(future)
}

// replicateWait blocks until the proposal commits or the peer shuts down.
// A commit that raced shutdown still wins: the resolved future is checked
// before the cancellation signal.
func (t *transaction) replicateWait(future *consensus.Future) {
	respCh, errCh := future.AsyncResponse()

	var index uint64
	select {
	case index = <-respCh:
	case err := <-errCh:
		t.finish(shutdownAbort(err))
		return
	default:
		select {
		case index = <-respCh:
		case err := <-errCh:
			t.finish(shutdownAbort(err))
			return
		case <-t.peer.ctx.Done():
			t.finish(ErrAbortedByShutdown)
			return
		}
	}

	if err := t.peer.applyExec.Submit(func() { t.applyTask(index) }); err != nil {
		t.finish(shutdownAbort(err))
	}
}

func (t *transaction) applyTask(index uint64) {
	t.finish(t.variant.Apply(index))
}

// finish resolves the transaction exactly once: releases the config lock
// if held, reports the outcome and unregisters.
func (t *transaction) finish(err error) {
	if t.configLocked {
		t.configMu.Unlock()
		t.configLocked = false
	}

	if err != nil && err != ErrAbortedByShutdown {
		log.Error("tablet[%d] %s transaction failed: %v", t.peer.tabletID(), t.variant.Name(), err)
	}

	t.variant.Result().finish(err)
	t.peer.removeTxn(t.id)
	t.peer.txnWG.Done()
}
