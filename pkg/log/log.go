package log

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hudsor01/tenant-flow-sub014/internal/config"
)

var Module = fx.Module("log",
	fx.Provide(NewLogger),
)

// NewLogger builds the application logger. Development environments get
// console output, everything else structured JSON.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if strings.EqualFold(cfg.Environment, "development") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}

	return logger.With(
		zap.String("service", cfg.AppName),
		zap.String("version", cfg.AppVersion),
	), nil
}
