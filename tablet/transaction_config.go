package tablet

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/proto/tabletpb"
)

// ChangeConfigTransactionContext carries one quorum change submission.
type ChangeConfigTransactionContext struct {
	NewQuorum metapb.Quorum

	resultOnce sync.Once
	result     *TxnResult
}

// Result returns the handle the submitter waits on.
func (c *ChangeConfigTransactionContext) Result() *TxnResult {
	c.resultOnce.Do(func() {
		c.result = newTxnResult()
	})
	return c.result
}

type leaderChangeConfigTransaction struct {
	tablet *Tablet
	ctx    *ChangeConfigTransactionContext
	cmd    *tabletpb.Command
}

func newLeaderChangeConfigTransaction(tablet *Tablet, ctx *ChangeConfigTransactionContext) *leaderChangeConfigTransaction {
	return &leaderChangeConfigTransaction{tablet: tablet, ctx: ctx}
}

func (t *leaderChangeConfigTransaction) Prepare() (*tabletpb.Command, error) {
	if len(t.ctx.NewQuorum.Peers) == 0 {
		return nil, errors.New("change config transaction with empty quorum")
	}

	next := t.ctx.NewQuorum.Clone()
	if current := t.tablet.Meta().Quorum(); next.SeqNo <= current.SeqNo {
		next.SeqNo = current.SeqNo + 1
	}

	t.cmd = &tabletpb.Command{
		Type:         tabletpb.CmdType_CHANGE_CONFIG,
		ChangeConfig: &tabletpb.ChangeConfigCommand{NewQuorum: next},
	}
	return t.cmd, nil
}

func (t *leaderChangeConfigTransaction) Apply(index uint64) error {
	return t.tablet.ApplyCommand(t.cmd, index)
}

func (t *leaderChangeConfigTransaction) Result() *TxnResult {
	return t.ctx.Result()
}

func (t *leaderChangeConfigTransaction) Name() string {
	return "change-config"
}
