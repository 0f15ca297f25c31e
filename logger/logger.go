package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

// InitLogger configures the process-wide logger. Simulation runs can
// emit a large volume of trace-level records, so output goes to a file
// as JSON rather than to the console.
func InitLogger(logFile string, level string) error {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	atom := zap.NewAtomicLevel()
	if err := atom.UnmarshalText([]byte(level)); err != nil {
		return err
	}

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(file), atom)
	Logger = zap.New(core, zap.AddCaller())

	return nil
}

// InitNop installs a no-op logger, for tests and for library callers
// that manage their own logging.
func InitNop() {
	Logger = zap.NewNop()
}
