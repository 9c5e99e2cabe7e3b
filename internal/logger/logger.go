package logger

import (
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON logger on stdout tagged with the service name.
func New(service, level string) *zap.Logger {
	return build(service, consoleCore(level))
}

// WithOTel is New plus a tee into the global OTel logger provider, so log
// records reach the collector next to the traces.
func WithOTel(service, level string) *zap.Logger {
	otelCore := otelzap.NewCore(service+".manual",
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
	)
	return build(service, zapcore.NewTee(otelCore, consoleCore(level)))
}

func consoleCore(level string) zapcore.Core {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(enc),
		zapcore.Lock(os.Stdout),
		parseLevel(level),
	)
}

func build(service string, core zapcore.Core) *zap.Logger {
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", service)),
	)
}

func parseLevel(lvl string) zapcore.Level {
	l, err := zapcore.ParseLevel(strings.TrimSpace(lvl))
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
