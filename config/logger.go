package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the logrus instance shared by the gateway. Callers inject
// it rather than reaching for a package global so tests can swap in a silent
// logger.
func NewLogger(level string) *logrus.Logger {
	log := logrus.New()

	// Set formatter to JSON
	log.SetFormatter(&logrus.JSONFormatter{})

	// Set output to stdout (default)
	log.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	return log
}
