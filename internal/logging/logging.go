package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/parisxmas/kobodash/internal/gelf"
)

const service = "kobodash"

// New builds a JSON logger on stderr at the given level. When gelfAddr is set
// every entry is also shipped to that GELF UDP endpoint. The returned func
// flushes the logger and closes the GELF socket.
func New(level, gelfAddr string) (*zap.Logger, func(), error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stderr), lvl)

	closeFn := func() {}
	if gelfAddr != "" {
		w, err := gelf.New(gelfAddr, service)
		if err != nil {
			return nil, nil, fmt.Errorf("gelf %s: %w", gelfAddr, err)
		}
		core = zapcore.NewTee(core, gelf.NewCore(w, lvl))
		closeFn = func() { _ = w.Close() }
	}

	log := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("service", service))
	return log, func() {
		_ = log.Sync()
		closeFn()
	}, nil
}
