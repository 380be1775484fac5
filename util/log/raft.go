package log

import raftlogger "github.com/tiglabs/raft/logger"

var _ raftlogger.Logger = &RaftLogger{}

// RaftLogger routes raft library logging through the process logger.
type RaftLogger struct{}

// NewRaftLogger create a raft logger bridge.
func NewRaftLogger() *RaftLogger { return &RaftLogger{} }

func (r *RaftLogger) IsEnableDebug() bool { return IsEnableDebug() }
func (r *RaftLogger) IsEnableInfo() bool  { return IsEnableInfo() }
func (r *RaftLogger) IsEnableWarn() bool  { return IsEnableWarn() }

func (r *RaftLogger) Debug(format string, v ...interface{}) { Debug(format, v...) }
func (r *RaftLogger) Info(format string, v ...interface{})  { Info(format, v...) }
func (r *RaftLogger) Warn(format string, v ...interface{})  { Warn(format, v...) }
func (r *RaftLogger) Error(format string, v ...interface{}) { Error(format, v...) }
