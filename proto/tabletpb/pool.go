package tabletpb

import (
	"sync"
)

var commandPool = &sync.Pool{
	New: func() interface{} {
		return new(Command)
	},
}

// CreateCommand create a Command object
func CreateCommand() *Command {
	return commandPool.Get().(*Command)
}

// Close reset and put to pool
func (c *Command) Close() error {
	c.Type = 0
	c.Write = nil
	c.AlterSchema = nil
	c.ChangeConfig = nil
	commandPool.Put(c)

	return nil
}
