// Package autoload initializes the global logger from LOG_* environment
// variables on import:
//
//	import _ "github.com/dealeros/carbot/pkg/logger/autoload"
package autoload

import (
	configx "github.com/dealeros/carbot/pkg/config"
	logx "github.com/dealeros/carbot/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}
