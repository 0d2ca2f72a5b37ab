package logging

import (
	"log/slog"
	"runtime"
)

func sourceFrame(record slog.Record) runtime.Frame {
	frames := runtime.CallersFrames([]uintptr{record.PC})
	frame, _ := frames.Next()
	return frame
}
