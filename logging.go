package tunnel

import (
	"io"
	"os"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log = logging.MustGetLogger("tunnel")

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// PrepareLogger installs the logging backends for configuration. The returned
// closer releases the log file, if one is configured.
func PrepareLogger(configuration Configuration) (io.Closer, error) {
	format, err := logging.NewStringFormatter(configuration.LoggingFormat)
	if err != nil {
		return nil, errors.Wrap(err, "could not prepare logger")
	}

	level, err := convertLogLevel(configuration.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "could not prepare logger")
	}

	backends := []logging.Backend{
		logging.NewBackendFormatter(logging.NewLogBackend(os.Stderr, "", 0), format),
	}

	var closer io.Closer = nopCloser{}
	if configuration.LogFile != "" {
		fileLogger := &lumberjack.Logger{
			Filename:   configuration.LogFile,
			MaxSize:    configuration.LogFileMaxSize,
			MaxBackups: configuration.LogFileMaxBackups,
			LocalTime:  true,
		}
		backends = append(backends, logging.NewBackendFormatter(logging.NewLogBackend(fileLogger, "", 0), format))
		closer = fileLogger
	}

	backendLeveled := logging.MultiLogger(backends...)
	backendLeveled.SetLevel(level, "")

	logging.SetBackend(backendLeveled)

	return closer, nil
}

func convertLogLevel(logLevel string) (logging.Level, error) {
	switch logLevel {
	case "WARN":
		return logging.LogLevel("WARNING")
	default:
		return logging.LogLevel(logLevel)
	}
}
