package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the process logger. Development gets the human-readable
// console encoder with debug enabled; everything else gets production
// JSON output.
func New(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}
	return logger, nil
}
