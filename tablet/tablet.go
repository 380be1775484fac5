package tablet

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/consensus"
	"github.com/tiglabs/tabletengine/proto/tabletpb"
	"github.com/tiglabs/tabletengine/store/kvstore"
	"github.com/tiglabs/tabletengine/util/json"
	"github.com/tiglabs/tabletengine/util/log"
)

// Tablet couples the row engine with the tablet metadata and applies
// replicated commands to both. Apply is idempotent over log indexes so
// that a command redelivered after restart or by a second apply path is
// skipped.
type Tablet struct {
	meta   *TabletMeta
	engine kvstore.KVStore

	mu          sync.Mutex
	consensus   consensus.Consensus
	lastApplied uint64
}

// NewTablet builds a tablet over an opened engine and metadata store. The
// apply watermark resumes from whichever of the two is further ahead.
func NewTablet(meta *TabletMeta, engine kvstore.KVStore) (*Tablet, error) {
	applied, err := engine.ApplyID()
	if err != nil {
		return nil, errors.Wrap(err, "read engine apply id")
	}
	if metaApplied := meta.AppliedIndex(); metaApplied > applied {
		applied = metaApplied
	}

	return &Tablet{
		meta:        meta,
		engine:      engine,
		lastApplied: applied,
	}, nil
}

// SetConsensus attaches the replication instance once the peer creates it.
func (t *Tablet) SetConsensus(c consensus.Consensus) {
	t.mu.Lock()
	t.consensus = c
	t.mu.Unlock()
}

// Consensus returns the attached replication instance, nil before Init.
func (t *Tablet) Consensus() consensus.Consensus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consensus
}

// Meta returns the tablet metadata store.
func (t *Tablet) Meta() *TabletMeta {
	return t.meta
}

// Engine returns the row engine.
func (t *Tablet) Engine() kvstore.KVStore {
	return t.engine
}

// AppliedIndex returns the highest log index applied so far.
func (t *Tablet) AppliedIndex() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastApplied
}

// ApplyCommand applies one replicated command at the given log index.
// Indexes at or below the watermark are skipped.
func (t *Tablet) ApplyCommand(cmd *tabletpb.Command, index uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if index > 0 && index <= t.lastApplied {
		if log.IsEnableDebug() {
			log.Debug("tablet[%d] skip command at index %d, applied %d", t.meta.ID(), index, t.lastApplied)
		}
		return nil
	}

	var err error
	switch cmd.Type {
	case tabletpb.CmdType_WRITE:
		err = t.applyWrite(cmd.Write, index)
	case tabletpb.CmdType_ALTER_SCHEMA:
		err = t.applyAlterSchema(cmd.AlterSchema, index)
	case tabletpb.CmdType_CHANGE_CONFIG:
		err = t.applyChangeConfig(cmd.ChangeConfig, index)
	default:
		err = errors.Errorf("unknown command type %d", cmd.Type)
	}
	if err != nil {
		return err
	}

	if index > t.lastApplied {
		t.lastApplied = index
	}
	return nil
}

// ApplyCommandData decodes a raw log payload and applies it.
func (t *Tablet) ApplyCommandData(data []byte, index uint64) error {
	cmd := tabletpb.CreateCommand()
	defer cmd.Close()

	if err := cmd.Unmarshal(data); err != nil {
		return errors.Wrap(err, "decode command")
	}
	return t.ApplyCommand(cmd, index)
}

func (t *Tablet) applyWrite(w *tabletpb.WriteCommand, index uint64) error {
	if w == nil {
		return errors.New("write command without body")
	}

	batch := t.engine.NewKVBatch()
	for _, row := range w.Rows {
		val, err := json.Marshal(row.Columns)
		if err != nil {
			return errors.Wrap(err, "encode row")
		}
		batch.Set(row.Key, val)
	}
	return errors.Wrap(t.engine.ExecuteBatch(batch, &kvstore.Option{ApplyID: index}), "apply write")
}

func (t *Tablet) applyAlterSchema(a *tabletpb.AlterSchemaCommand, index uint64) error {
	if a == nil {
		return errors.New("alter schema command without body")
	}

	if a.SchemaVersion > t.meta.SchemaVersion() {
		t.meta.SetSchemaVersion(a.SchemaVersion)
	}
	t.meta.SetAppliedIndex(index)
	if err := t.meta.Flush(); err != nil {
		return err
	}

	log.Info("tablet[%d] schema version now %d", t.meta.ID(), t.meta.SchemaVersion())
	return nil
}

func (t *Tablet) applyChangeConfig(c *tabletpb.ChangeConfigCommand, index uint64) error {
	if c == nil {
		return errors.New("change config command without body")
	}

	t.meta.SetQuorum(c.NewQuorum)
	t.meta.SetAppliedIndex(index)
	if err := t.meta.Flush(); err != nil {
		return err
	}

	log.Info("tablet[%d] quorum now seq %d with %d peers", t.meta.ID(), c.NewQuorum.SeqNo, len(c.NewQuorum.Peers))
	return nil
}

// GetRow reads back the stored columns for key, nil when absent.
func (t *Tablet) GetRow(key []byte) ([]tabletpb.Column, error) {
	raw, err := t.engine.Get(key)
	if err != nil || raw == nil {
		return nil, err
	}

	var cols []tabletpb.Column
	if err := json.Unmarshal(raw, &cols); err != nil {
		return nil, errors.Wrap(err, "decode row")
	}
	return cols, nil
}
