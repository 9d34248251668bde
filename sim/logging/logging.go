// Package logging configures the structured loggers used by the server
// components. Components create child loggers with New; the process decides
// where records go with Setup.
package logging

import (
	"context"
	"io"
	"os"
	"sort"

	"github.com/inconshreveable/log15/v3"
	ngrokLog "golang.ngrok.com/ngrok/log"
)

// Setup routes the root logger to w in logfmt, at debug level when debug
// is set and info level otherwise. A nil writer means stderr.
func Setup(w io.Writer, debug bool) log15.Logger {
	if w == nil {
		w = os.Stderr
	}

	lvl := log15.LvlInfo
	if debug {
		lvl = log15.LvlDebug
	}

	root := log15.Root()
	root.SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(w, log15.LogfmtFormat())))
	return root
}

// New returns a logger for one component, tagged with module=name.
func New(name string, ctx ...interface{}) log15.Logger {
	return log15.New(append([]interface{}{"module", name}, ctx...)...)
}

// Discard returns a logger that drops everything.
func Discard() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

// Silence drops every record that reaches the root logger.
func Silence() {
	log15.Root().SetHandler(log15.DiscardHandler())
}

// Ngrok adapts l to the leveled logger the ngrok agent expects. Trace
// records are written at debug level.
func Ngrok(l log15.Logger) ngrokLog.Logger {
	return ngrokLogger{l}
}

type ngrokLogger struct {
	l log15.Logger
}

func (n ngrokLogger) Log(_ context.Context, level ngrokLog.LogLevel, msg string, data map[string]interface{}) {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx := make([]interface{}, 0, 2*len(keys))
	for _, k := range keys {
		ctx = append(ctx, k, data[k])
	}

	switch level {
	case ngrokLog.LogLevelError:
		n.l.Error(msg, ctx...)
	case ngrokLog.LogLevelWarn:
		n.l.Warn(msg, ctx...)
	case ngrokLog.LogLevelInfo:
		n.l.Info(msg, ctx...)
	case ngrokLog.LogLevelDebug, ngrokLog.LogLevelTrace:
		n.l.Debug(msg, ctx...)
	}
}
