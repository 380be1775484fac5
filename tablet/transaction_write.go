package tablet

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/proto/tabletpb"
)

// WriteTransactionContext carries one row write submission and its result.
type WriteTransactionContext struct {
	Rows []tabletpb.Row

	resultOnce sync.Once
	result     *TxnResult
}

// Result returns the handle the submitter waits on.
func (c *WriteTransactionContext) Result() *TxnResult {
	c.resultOnce.Do(func() {
		c.result = newTxnResult()
	})
	return c.result
}

type leaderWriteTransaction struct {
	tablet *Tablet
	ctx    *WriteTransactionContext
	cmd    *tabletpb.Command
}

func newLeaderWriteTransaction(tablet *Tablet, ctx *WriteTransactionContext) *leaderWriteTransaction {
	return &leaderWriteTransaction{tablet: tablet, ctx: ctx}
}

func (t *leaderWriteTransaction) Prepare() (*tabletpb.Command, error) {
	if len(t.ctx.Rows) == 0 {
		return nil, errors.New("write transaction without rows")
	}
	for _, row := range t.ctx.Rows {
		if len(row.Key) == 0 {
			return nil, errors.New("write transaction with empty row key")
		}
	}

	t.cmd = &tabletpb.Command{
		Type:  tabletpb.CmdType_WRITE,
		Write: &tabletpb.WriteCommand{Rows: t.ctx.Rows},
	}
	return t.cmd, nil
}

func (t *leaderWriteTransaction) Apply(index uint64) error {
	return t.tablet.ApplyCommand(t.cmd, index)
}

func (t *leaderWriteTransaction) Result() *TxnResult {
	return t.ctx.Result()
}

func (t *leaderWriteTransaction) Name() string {
	return "write"
}
