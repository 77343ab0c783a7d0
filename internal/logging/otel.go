package logging

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bridgeOption tees every log entry into the OTel log pipeline
// alongside the stderr core, so logs land next to traces and metrics
// at the collector.
func bridgeOption(provider log.LoggerProvider) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, otelzap.NewCore("rewind",
			otelzap.WithLoggerProvider(provider),
		))
	})
}
