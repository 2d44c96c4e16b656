// Package logging provides the logrus logger and the chi request logger.
package logging

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Logger is the configured application logger. It starts as the logrus
// standard logger until NewLogger runs.
var Logger = logrus.StandardLogger()

// NewLogger creates and configures a new logrus Logger from viper
// (log_level, log_textlogging) and installs it as Logger.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	if viper.GetBool("log_textlogging") {
		logger.Formatter = &logrus.TextFormatter{
			DisableTimestamp: true,
		}
	} else {
		logger.Formatter = &logrus.JSONFormatter{
			DisableTimestamp: true,
		}
	}

	level := viper.GetString("log_level")
	if level == "" {
		level = "info"
	}
	l, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithError(err).Warn("invalid log level, using info")
		l = logrus.InfoLevel
	}
	logger.Level = l

	Logger = logger
	return logger
}
