// Package log wraps logrus with the structured fields every valve manager
// attaches to its output: datapath, port, and VLAN context.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the package-level logger used throughout valved.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// SetLevel parses and applies a logrus level name.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// SetJSONFormat switches to JSON-formatted log lines, for production log
// shipping.
func SetJSONFormat() {
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	})
}

// WithField returns an entry carrying a single field.
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields returns an entry carrying multiple fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithDatapath returns an entry scoped to a datapath name.
func WithDatapath(dp string) *logrus.Entry {
	return Logger.WithField("dp", dp)
}

// WithPort returns an entry scoped to a datapath and port number.
func WithPort(dp string, port int) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{"dp": dp, "port": port})
}

// WithVLAN returns an entry scoped to a datapath and VLAN id.
func WithVLAN(dp string, vid int) *logrus.Entry {
	return Logger.WithFields(logrus.Fields{"dp": dp, "vid": vid})
}

// WithOperation returns an entry scoped to an operation name, for the
// reconciliation and packet-in dispatch paths.
func WithOperation(op string) *logrus.Entry {
	return Logger.WithField("operation", op)
}
