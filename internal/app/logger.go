package app

import (
	"strings"

	"github.com/charlesng35/sqldesk/pkg/logger"
)

// ConfigureLogging initialises the global logger, defaulting the level to info.
func ConfigureLogging(opts logger.Options) error {
	opts.Level = strings.TrimSpace(opts.Level)
	if opts.Level == "" {
		opts.Level = "info"
	}
	return logger.Init(opts)
}
