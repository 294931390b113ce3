package nakama

import (
	"io"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/sirupsen/logrus"
)

// runtimeHook forwards logrus entries from the engine to the Nakama logger.
type runtimeHook struct {
	logger runtime.Logger
}

func (h runtimeHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h runtimeHook) Fire(entry *logrus.Entry) error {
	logger := h.logger
	if len(entry.Data) > 0 {
		fields := make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			fields[k] = v
		}
		logger = logger.WithFields(fields)
	}
	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		logger.Error("%s", entry.Message)
	case logrus.WarnLevel:
		logger.Warn("%s", entry.Message)
	case logrus.InfoLevel:
		logger.Info("%s", entry.Message)
	default:
		logger.Debug("%s", entry.Message)
	}
	return nil
}

// newBridgeLogger returns a logrus logger whose only sink is logger.
func newBridgeLogger(logger runtime.Logger, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(level)
	l.AddHook(runtimeHook{logger: logger})
	return l
}

// parseLevel falls back to info for unknown level names.
func parseLevel(name string) logrus.Level {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
