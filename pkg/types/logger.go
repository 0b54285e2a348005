package types

// Logger is the narrow logging contract every core component depends on.
// The default implementation (pkg/definition) is backed by zerolog; callers
// may substitute their own.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	// ToggleDebug flips whether Debug/Debugf emit output, returning the new
	// state.
	ToggleDebug(on bool) bool
}
