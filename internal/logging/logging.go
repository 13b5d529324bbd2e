package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	Log.SetOutput(os.Stdout)
	Log.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the global log level from a config string. Unknown values
// keep the current level.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		Log.Warnf("Unknown log level %q, keeping %s", level, Log.GetLevel())
		return
	}
	Log.SetLevel(parsed)
}

// Setup applies the configured level and output format.
func Setup(level, format string) {
	SetLevel(level)
	if format == "text" {
		Log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}
}

// ForAccount returns a logger entry carrying account/server identifying
// context, so every failure in a fetch cycle can be traced back.
func ForAccount(name, server, protocol string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{
		"account":  name,
		"server":   server,
		"protocol": protocol,
	})
}
