package core

import "github.com/stitchsync/syncore/pkg/types"

func logCmd(level types.LogLevel, message string, fields map[string]interface{}) types.Command {
	return types.LogCmd{Level: level, Message: message, Fields: fields}
}

func warnDropped(message string, fields map[string]interface{}) types.Command {
	return logCmd(types.LogWarn, message, fields)
}

func errDropped(message string, fields map[string]interface{}) types.Command {
	return logCmd(types.LogError, message, fields)
}
