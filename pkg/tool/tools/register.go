package tools

import (
	"time"

	"github.com/wilhg/scout/pkg/tool"
)

// TTLs configures per-tool cache lifetimes.
type TTLs struct {
	Product    time.Duration
	Competitor time.Duration
	Sentiment  time.Duration
}

// DefaultTTLs returns the documented cache lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Product:    time.Hour,
		Competitor: 2 * time.Hour,
		Sentiment:  30 * time.Minute,
	}
}

// RegisterAll registers the full analysis tool set on a registry.
func RegisterAll(reg *tool.Registry, s Searcher, ttls TTLs) error {
	for _, t := range []tool.Tool{
		NewProduct(s, ttls.Product),
		NewCompetitor(s, ttls.Competitor),
		NewSentiment(s, ttls.Sentiment),
		NewReport(),
	} {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
