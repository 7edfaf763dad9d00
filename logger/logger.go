package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	appLogger *logrus.Logger
	once      sync.Once
)

// L returns the shared application logger.
func L() *logrus.Logger {
	once.Do(func() {
		appLogger = logrus.New()
		appLogger.SetOutput(os.Stdout)
		appLogger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
		if os.Getenv("LOG_LEVEL") == "debug" {
			appLogger.SetLevel(logrus.DebugLevel)
		} else {
			appLogger.SetLevel(logrus.InfoLevel)
		}
	})
	return appLogger
}
