// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger writing to stderr at level. format is "text"
// (default) or "json".
func New(level, format string) (*logrus.Logger, error) {
	return NewWithOutput(os.Stderr, level, format)
}

// NewWithOutput is New with an explicit writer. An empty or unknown level
// falls back to info; an unknown format is an error.
func NewWithOutput(out io.Writer, level, format string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(out)

	switch strings.ToLower(format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}

	log.SetLevel(logrus.InfoLevel)
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			log.WithField("requested_level", level).Warn("unknown log level; using info")
			return log, nil
		}
		log.SetLevel(lvl)
	}
	return log, nil
}
