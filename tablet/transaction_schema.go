package tablet

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/proto/tabletpb"
)

// AlterSchemaTransactionContext carries one schema change submission.
type AlterSchemaTransactionContext struct {
	SchemaVersion metapb.SchemaVersion
	AddColumns    []string
	DropColumns   []string

	resultOnce sync.Once
	result     *TxnResult
}

// Result returns the handle the submitter waits on.
func (c *AlterSchemaTransactionContext) Result() *TxnResult {
	c.resultOnce.Do(func() {
		c.result = newTxnResult()
	})
	return c.result
}

type leaderAlterSchemaTransaction struct {
	tablet *Tablet
	ctx    *AlterSchemaTransactionContext
	cmd    *tabletpb.Command
}

func newLeaderAlterSchemaTransaction(tablet *Tablet, ctx *AlterSchemaTransactionContext) *leaderAlterSchemaTransaction {
	return &leaderAlterSchemaTransaction{tablet: tablet, ctx: ctx}
}

func (t *leaderAlterSchemaTransaction) Prepare() (*tabletpb.Command, error) {
	current := t.tablet.Meta().SchemaVersion()
	if t.ctx.SchemaVersion <= current {
		return nil, errors.Errorf("schema version %d is not newer than current %d", t.ctx.SchemaVersion, current)
	}

	t.cmd = &tabletpb.Command{
		Type: tabletpb.CmdType_ALTER_SCHEMA,
		AlterSchema: &tabletpb.AlterSchemaCommand{
			SchemaVersion: t.ctx.SchemaVersion,
			AddColumns:    t.ctx.AddColumns,
			DropColumns:   t.ctx.DropColumns,
		},
	}
	return t.cmd, nil
}

func (t *leaderAlterSchemaTransaction) Apply(index uint64) error {
	return t.tablet.ApplyCommand(t.cmd, index)
}

func (t *leaderAlterSchemaTransaction) Result() *TxnResult {
	return t.ctx.Result()
}

func (t *leaderAlterSchemaTransaction) Name() string {
	return "alter-schema"
}
