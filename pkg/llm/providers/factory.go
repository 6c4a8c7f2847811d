package providers

import (
	"fmt"

	"github.com/Steve-IX/Ezra/pkg/config"
	"github.com/Steve-IX/Ezra/pkg/llm"
)

// New builds the adapter for cfg.Kind.
func New(cfg config.ProviderConfig, opts ...Option) (llm.Provider, error) {
	switch cfg.Kind {
	case config.KindOpenAI:
		return NewOpenAI(cfg, opts...), nil
	case config.KindOllama:
		return NewOllama(cfg, opts...), nil
	case config.KindAnthropic:
		return NewAnthropic(cfg, opts...), nil
	case config.KindGoogle:
		return NewGoogle(cfg, opts...), nil
	default:
		return nil, fmt.Errorf("%w: kind %q", llm.ErrUnsupportedProvider, cfg.Kind)
	}
}

// NewAll builds adapters for every config, preserving order.
func NewAll(cfgs []config.ProviderConfig, opts ...Option) ([]llm.Provider, error) {
	out := make([]llm.Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, err := New(cfg, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
