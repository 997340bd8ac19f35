package main

import (
	"fmt"
	"time"

	"github.com/eduplatform/gatekeeper/core/admission"
	"github.com/eduplatform/gatekeeper/core/cache"
	"github.com/eduplatform/gatekeeper/core/config"
	"github.com/eduplatform/gatekeeper/core/server"
	"github.com/eduplatform/gatekeeper/integration/database/opensearch"
	"github.com/eduplatform/gatekeeper/integration/database/pg"
	"github.com/eduplatform/gatekeeper/integration/database/redis"
)

// appConfig holds process level settings.
type appConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"SERVICE_NAME" envDefault:"gatekeeper"`

	// Store selects the counter store backend: "redis" or "memory".
	Store string `env:"COUNTER_STORE" envDefault:"redis"`

	UpstreamURL string `env:"UPSTREAM_URL"`

	PostgresEnabled   bool `env:"PG_ENABLED" envDefault:"false"`
	OpenSearchEnabled bool `env:"OPENSEARCH_ENABLED" envDefault:"false"`

	EventBufferSize     int           `env:"EVENT_BUFFER_SIZE" envDefault:"1024"`
	EventHandlerLimit   int           `env:"EVENT_MAX_CONCURRENT_HANDLERS" envDefault:"16"`
	EventHandlerTimeout time.Duration `env:"EVENT_HANDLER_TIMEOUT" envDefault:"30s"`

	WarmInterval time.Duration `env:"CACHE_WARM_INTERVAL" envDefault:"10m"`
	RewarmDelay  time.Duration `env:"CACHE_REWARM_DELAY" envDefault:"5s"`

	TopViolatorsDays  int `env:"TOP_VIOLATORS_DAYS" envDefault:"7"`
	TopViolatorsLimit int `env:"TOP_VIOLATORS_LIMIT" envDefault:"10"`
}

type configs struct {
	app        appConfig
	admission  admission.Config
	cache      cache.Config
	server     server.Config
	redis      redis.Config
	pg         pg.Config
	opensearch opensearch.Config
}

func loadConfigs() (configs, error) {
	var c configs
	if err := config.Load(&c.app); err != nil {
		return c, err
	}
	if err := config.Load(&c.admission); err != nil {
		return c, err
	}
	if err := config.Load(&c.cache); err != nil {
		return c, err
	}
	if err := config.Load(&c.server); err != nil {
		return c, err
	}

	switch c.app.Store {
	case "redis":
		if err := config.Load(&c.redis); err != nil {
			return c, err
		}
	case "memory":
	default:
		return c, fmt.Errorf("unknown COUNTER_STORE %q", c.app.Store)
	}

	if c.app.PostgresEnabled {
		if err := config.Load(&c.pg); err != nil {
			return c, err
		}
	}
	if c.app.OpenSearchEnabled {
		if err := config.Load(&c.opensearch); err != nil {
			return c, err
		}
	}
	return c, nil
}
