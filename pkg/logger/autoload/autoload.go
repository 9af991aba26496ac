// Package autoload initializes the global logger from the LOG_* environment
// on import.
package autoload

import (
	configx "github.com/rentalgenie/rental-genie-agent/pkg/config"
	logx "github.com/rentalgenie/rental-genie-agent/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
