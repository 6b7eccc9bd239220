package plugins

import (
	"github.com/joshp123/acbridge/internal/config"
	"github.com/joshp123/acbridge/internal/core"
	"github.com/joshp123/acbridge/plugins/samsungac"
)

func init() {
	Register(func(cfg *config.Config) (core.Plugin, bool) {
		return samsungac.NewPlugin(cfg)
	})
}
