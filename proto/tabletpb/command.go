package tabletpb

import (
	"github.com/tiglabs/tabletengine/proto/metapb"
	"github.com/tiglabs/tabletengine/util/json"
)

// CmdType enumerates the operations replicated through the tablet log.
type CmdType int32

const (
	CmdType_WRITE CmdType = iota + 1
	CmdType_ALTER_SCHEMA
	CmdType_CHANGE_CONFIG
)

func (t CmdType) String() string {
	switch t {
	case CmdType_WRITE:
		return "WRITE"
	case CmdType_ALTER_SCHEMA:
		return "ALTER_SCHEMA"
	case CmdType_CHANGE_CONFIG:
		return "CHANGE_CONFIG"
	}
	return "UNKNOWN"
}

// Column is one cell of a mutated row.
type Column struct {
	Name  string `json:"name"`
	Value []byte `json:"value"`
}

// Row is one row mutation addressed by its encoded primary key.
type Row struct {
	Key     []byte   `json:"key"`
	Columns []Column `json:"columns"`
}

// WriteCommand carries the row mutations of one write operation.
type WriteCommand struct {
	Rows []Row `json:"rows"`
}

// AlterSchemaCommand carries a tablet schema change.
type AlterSchemaCommand struct {
	SchemaVersion metapb.SchemaVersion `json:"schema_version"`
	AddColumns    []string             `json:"add_columns,omitempty"`
	DropColumns   []string             `json:"drop_columns,omitempty"`
}

// ChangeConfigCommand carries a quorum membership change.
type ChangeConfigCommand struct {
	NewQuorum metapb.Quorum `json:"new_quorum"`
}

// Command is the payload proposed to the replicated log. Exactly one of
// the operation fields matching Type is set.
type Command struct {
	Type         CmdType              `json:"type"`
	Write        *WriteCommand        `json:"write,omitempty"`
	AlterSchema  *AlterSchemaCommand  `json:"alter_schema,omitempty"`
	ChangeConfig *ChangeConfigCommand `json:"change_config,omitempty"`
}

// Marshal encode the command for the log entry.
func (c *Command) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal decode a command from a log entry.
func (c *Command) Unmarshal(data []byte) error {
	return json.Unmarshal(data, c)
}
