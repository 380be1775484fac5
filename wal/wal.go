package wal

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/tiglabs/raft/proto"
	"github.com/tiglabs/raft/storage"
	raftwal "github.com/tiglabs/raft/storage/wal"
)

// ErrClosed is returned when appending to a closed log.
var ErrClosed = errors.New("wal: log is closed")

// Log is the exclusively owned durable log handle of one tablet. It wraps
// the raft write-ahead log storage: single-replica consensus appends
// entries through it directly, multi-replica consensus hands the
// underlying storage to the raft group.
type Log struct {
	mu        sync.Mutex
	storage   *raftwal.Storage
	lastIndex uint64
	closed    bool
}

// Open opens (or creates) the durable log under path.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrapf(err, "create wal dir %s", path)
	}
	s, err := raftwal.NewStorage(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open wal storage at %s", path)
	}
	last, err := s.LastIndex()
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "read wal last index")
	}
	return &Log{storage: s, lastIndex: last}, nil
}

// Storage exposes the raft storage backing this log.
func (l *Log) Storage() storage.Storage { return l.storage }

// LastIndex returns the highest appended entry index.
func (l *Log) LastIndex() uint64 {
	l.mu.Lock()
	last := l.lastIndex
	l.mu.Unlock()
	return last
}

// Append durably stores data as the next log entry of the given term and
// returns the index assigned to it.
func (l *Log) Append(term uint64, data []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}
	index := l.lastIndex + 1
	entry := &proto.Entry{
		Type:  proto.EntryNormal,
		Term:  term,
		Index: index,
		Data:  data,
	}
	if err := l.storage.StoreEntries([]*proto.Entry{entry}); err != nil {
		return 0, errors.Wrapf(err, "store entry %d", index)
	}
	l.lastIndex = index
	return index, nil
}

// Close releases the underlying storage.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.storage.Close()
}
