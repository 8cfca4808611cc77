// Package logging configures the process-wide logrus logger and hands out
// component-scoped entries.
//
// Usage:
//
//	if err := logging.Setup("debug", "text"); err != nil {
//	    return err
//	}
//	log := logging.For("hub")
//	log.WithField("sessions", 3).Info("tick")
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup sets the level and formatter of the standard logrus logger.
// An empty level defaults to info, an empty format to text.
func Setup(level, format string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", FormatText:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	case FormatJSON:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}
	return nil
}

// SetOutput redirects the standard logger, mainly for tests.
func SetOutput(w io.Writer) {
	logrus.SetOutput(w)
}

// For returns an entry tagged with the given component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
