package nativelog

import (
	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapSink writes native log lines to a zap logger. Fatal severities are
// logged at error level with fatal=true; the sink never exits the process.
func ZapSink(logger *zap.Logger) Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return SinkFunc(func(message string, severity int) error {
		fields := []zap.Field{zap.Int("severity", severity)}
		if severity >= SeverityFatal {
			fields = append(fields, zap.Bool("fatal", true))
		}
		if ce := logger.Check(zapLevel(severity), message); ce != nil {
			ce.Write(fields...)
		}
		return nil
	})
}

func zapLevel(severity int) zapcore.Level {
	switch {
	case severity <= SeverityTrace:
		return zapcore.DebugLevel
	case severity == SeverityInfo:
		return zapcore.InfoLevel
	case severity == SeverityWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// ZerologSink writes native log lines to a zerolog logger.
func ZerologSink(logger zerolog.Logger) Sink {
	return SinkFunc(func(message string, severity int) error {
		ev := logger.WithLevel(zerologLevel(severity)).Int("severity", severity)
		if severity >= SeverityFatal {
			ev = ev.Bool("fatal", true)
		}
		ev.Msg(message)
		return nil
	})
}

func zerologLevel(severity int) zerolog.Level {
	switch {
	case severity <= SeverityTrace:
		return zerolog.DebugLevel
	case severity == SeverityInfo:
		return zerolog.InfoLevel
	case severity == SeverityWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
