package logsvc

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/abinesh-lmsace/pulse/core"
)

// LogrusLogger is the structured logger used when no Rollbar token is
// configured.
type LogrusLogger struct {
	log *logrus.Logger
}

var _ core.Logger = (*LogrusLogger)(nil)

func NewLogrusLogger(out io.Writer, debug bool) *LogrusLogger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return &LogrusLogger{log: log}
}

func (l *LogrusLogger) Enable(enabled bool) {
	if enabled {
		l.log.SetLevel(logrus.InfoLevel)
		return
	}
	l.log.SetLevel(logrus.PanicLevel)
}

func (l *LogrusLogger) fields(args []interface{}) *logrus.Entry {
	if len(args) == 0 {
		return logrus.NewEntry(l.log)
	}
	fields := make(logrus.Fields, len(args))
	for i, arg := range args {
		if err, ok := arg.(error); ok {
			fields["error"] = err
			continue
		}
		fields[fmt.Sprintf("arg%d", i)] = arg
	}
	return l.log.WithFields(fields)
}

func (l *LogrusLogger) Debug(msg string, args ...interface{}) { l.fields(args).Debug(msg) }
func (l *LogrusLogger) Info(msg string, args ...interface{})  { l.fields(args).Info(msg) }
func (l *LogrusLogger) Warn(msg string, args ...interface{})  { l.fields(args).Warn(msg) }
func (l *LogrusLogger) Error(msg string, args ...interface{}) { l.fields(args).Error(msg) }
func (l *LogrusLogger) Fatal(msg string, args ...interface{}) { l.fields(args).Fatal(msg) }
