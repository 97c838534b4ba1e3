package optimize

import (
	"github.com/wudi/pdfscrub/observability"
)

type Config struct {
	Logger observability.Logger
}

// Optimizer shrinks a document after redaction.
type Optimizer struct {
	config Config
}

func New(config Config) *Optimizer {
	if config.Logger == nil {
		config.Logger = observability.NopLogger{}
	}
	return &Optimizer{config: config}
}
