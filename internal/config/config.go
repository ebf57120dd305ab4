package config

import (
	"github.com/sirupsen/logrus"
)

// Verbose enables debug output when true
var Verbose bool

// Log receives debug output. The CLI replaces it with the configured logger.
var Log logrus.FieldLogger = logrus.StandardLogger()

// Debugf prints debug messages when Verbose is true
func Debugf(format string, args ...any) {
	if Verbose {
		Log.Debugf(format, args...)
	}
}
