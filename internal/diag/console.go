package diag

import (
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the engine's logger. Console output is colored when
// stderr is a terminal.
func NewLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Printer forwards diagnostics to a zap logger.
type Printer struct {
	Logger *zap.Logger
}

// Emit implements Handler.
func (p Printer) Emit(d Diagnostic) {
	fields := []zap.Field{zap.String("location", d.Primary.String())}
	for _, n := range d.Notes {
		fields = append(fields, zap.String("note", n))
	}
	switch d.Severity {
	case SeverityError:
		p.Logger.Error(d.Message, fields...)
	case SeverityWarning:
		p.Logger.Warn(d.Message, fields...)
	default:
		p.Logger.Info(d.Message, fields...)
	}
}
