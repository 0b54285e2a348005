package types

import "time"

// CommandKind enumerates the externally visible effects a handler may
// request. Commands are the only way a handler reaches outside the model;
// the update function itself never performs I/O.
type CommandKind int

const (
	CmdSendMessage CommandKind = iota
	CmdSubscribeDoc
	CmdSetTimeout
	CmdClearTimeout
	CmdResolveRequest
	CmdRejectRequest
	CmdLog
	CmdBatch
)

// Command is the sum type emitted by handlers and executed by the shell.
type Command interface {
	CommandKind() CommandKind
}

// SendMessageCmd asks the shell to deliver Message on the channel
// identified by ToChannelId.
type SendMessageCmd struct {
	ToChannelId ChannelId
	Message     ProtocolMessage
}

func (SendMessageCmd) CommandKind() CommandKind { return CmdSendMessage }

// SubscribeDocCmd asks the shell to register the core's own change-event
// listener on a document's CRDT instance (idempotent on the shell's side).
type SubscribeDocCmd struct {
	DocId DocumentId
}

func (SubscribeDocCmd) CommandKind() CommandKind { return CmdSubscribeDoc }

// SetTimeoutCmd asks the shell to schedule a TimeoutFired message keyed by
// Key after Duration, unless cleared first.
type SetTimeoutCmd struct {
	Key      string
	Duration time.Duration
}

func (SetTimeoutCmd) CommandKind() CommandKind { return CmdSetTimeout }

// ClearTimeoutCmd cancels a previously scheduled timeout.
type ClearTimeoutCmd struct {
	Key string
}

func (ClearTimeoutCmd) CommandKind() CommandKind { return CmdClearTimeout }

// ResolveRequestCmd asks the shell to resolve the external caller's pending
// promise for RequestId with Payload.
type ResolveRequestCmd struct {
	RequestId RequestId
	Payload   interface{}
}

func (ResolveRequestCmd) CommandKind() CommandKind { return CmdResolveRequest }

// RejectRequestCmd asks the shell to reject the external caller's pending
// promise for RequestId with Err.
type RejectRequestCmd struct {
	RequestId RequestId
	Err       error
}

func (RejectRequestCmd) CommandKind() CommandKind { return CmdRejectRequest }

// LogLevel mirrors the levels the Logger interface exposes.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// LogCmd asks the shell to emit a structured log line.
type LogCmd struct {
	Level   LogLevel
	Message string
	Fields  map[string]interface{}
}

func (LogCmd) CommandKind() CommandKind { return CmdLog }

// BatchCmd groups commands that must execute, in order, as a unit.
type BatchCmd struct {
	Commands []Command
}

func (BatchCmd) CommandKind() CommandKind { return CmdBatch }
