package main

import (
	"io"

	"github.com/sirupsen/logrus"
)

func newLogger(out io.Writer, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}
