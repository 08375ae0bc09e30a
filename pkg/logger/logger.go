// Package logger defines the leveled logger the proxy writes to and a
// zerolog backed implementation for the server binary.
//
// Log calls take a message followed by alternating key/value pairs, the
// same convention log/slog uses, so pkg/logger/slog can adapt any
// slog.Handler.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// Logger is the logging surface used across the module.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Error(string, ...any) {}
func (Nop) Warn(string, ...any)  {}
func (Nop) Info(string, ...any)  {}
func (Nop) Debug(string, ...any) {}

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level

	levelErr error
}

// LogData is a zerolog logger together with the file it writes to, if any.
type LogData struct {
	writer  io.Writer
	LogFile *os.File
	Logger  zerolog.Logger
}

var _ Logger = (*LogData)(nil)

func New() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Level sets the minimum level by name: debug, info, warn or error. An
// empty name keeps info. Unknown names are reported by Make.
func (build *LogBuild) Level(name string) *LogBuild {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return build
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		build.levelErr = fmt.Errorf("logger: %w", err)
		return build
	}
	build.level = lvl
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	if build.levelErr != nil {
		return nil, build.levelErr
	}

	logData = new(LogData)
	logData.writer = os.Stdout
	if build.writer != nil {
		logData.writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(logData.writer).Level(build.level).With().Timestamp().Logger()
	return
}

// Close closes the log file opened by FromPath.
func (data *LogData) Close() error {
	if data.LogFile == nil {
		return nil
	}
	return data.LogFile.Close()
}

func (data *LogData) Error(msg string, args ...any) {
	data.log(data.Logger.Error(), msg, args)
}

func (data *LogData) Warn(msg string, args ...any) {
	data.log(data.Logger.Warn(), msg, args)
}

func (data *LogData) Info(msg string, args ...any) {
	data.log(data.Logger.Info(), msg, args)
}

func (data *LogData) Debug(msg string, args ...any) {
	data.log(data.Logger.Debug(), msg, args)
}

func (data *LogData) log(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if i+1 == len(args) {
			e = e.Interface("!BADKEY", args[i])
			break
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
