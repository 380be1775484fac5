package tablet

import (
	"sync"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/util/json"
)

var (
	metaBucket = []byte("tablet-meta")
	metaKey    = []byte("meta")
)

type metaRecord struct {
	ID            metapb.TabletID      `json:"id"`
	SchemaVersion metapb.SchemaVersion `json:"schema_version"`
	AppliedIndex  uint64               `json:"applied_index"`
	Quorum        metapb.Quorum        `json:"quorum"`
}

// TabletMeta is the persisted metadata of one tablet: identity, schema
// version, the agreed quorum and the metadata apply watermark. Changes
// accumulate in memory until Flush commits them durably.
type TabletMeta struct {
	mu  sync.RWMutex
	db  *bolt.DB
	rec metaRecord
}

// OpenMeta opens (or creates) the tablet metadata store at path.
func OpenMeta(path string, id metapb.TabletID) (*TabletMeta, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open tablet meta at %s", path)
	}

	m := &TabletMeta{db: db}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		raw := b.Get(metaKey)
		if raw == nil {
			m.rec = metaRecord{ID: id}
			return nil
		}
		return json.Unmarshal(raw, &m.rec)
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "load tablet meta")
	}
	return m, nil
}

// ID returns the tablet identity.
func (m *TabletMeta) ID() metapb.TabletID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.ID
}

// SchemaVersion returns the current schema version.
func (m *TabletMeta) SchemaVersion() metapb.SchemaVersion {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.SchemaVersion
}

// SetSchemaVersion stages a new schema version.
func (m *TabletMeta) SetSchemaVersion(v metapb.SchemaVersion) {
	m.mu.Lock()
	m.rec.SchemaVersion = v
	m.mu.Unlock()
}

// Quorum returns a copy of the persisted quorum.
func (m *TabletMeta) Quorum() metapb.Quorum {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.Quorum.Clone()
}

// SetQuorum stages a new quorum.
func (m *TabletMeta) SetQuorum(q metapb.Quorum) {
	m.mu.Lock()
	m.rec.Quorum = q.Clone()
	m.mu.Unlock()
}

// AppliedIndex returns the metadata apply watermark.
func (m *TabletMeta) AppliedIndex() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rec.AppliedIndex
}

// SetAppliedIndex stages the metadata apply watermark.
func (m *TabletMeta) SetAppliedIndex(index uint64) {
	m.mu.Lock()
	if index > m.rec.AppliedIndex {
		m.rec.AppliedIndex = index
	}
	m.mu.Unlock()
}

// Flush durably persists the staged metadata. It must succeed before the
// peer declares itself RUNNING.
func (m *TabletMeta) Flush() error {
	m.mu.RLock()
	raw, err := json.Marshal(&m.rec)
	m.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "encode tablet meta")
	}

	err = m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(metaKey, raw)
	})
	return errors.Wrap(err, "flush tablet meta")
}

// Close releases the metadata store.
func (m *TabletMeta) Close() error {
	return m.db.Close()
}
