package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// global accessible logger
var (
	logger *logrus.Logger
	Log    *logrus.Entry
)

// Tests never go through main, so the logger has to be usable without an
// explicit Init.
func init() {
	Init("dev")
}

// Init (re)configures the global logger. Production logs are JSON so they
// can be shipped as-is, everything else gets the readable text formatter.
func Init(env string) {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)

	if env == "prod" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		logger.SetLevel(logrus.DebugLevel)
	}

	Log = logger.WithFields(logrus.Fields{"service": "finsite", "env": env})
}
