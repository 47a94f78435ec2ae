// Package svc assembles the agent's collaborators from configuration: the
// classifier (LLM or rules backend), the execution venue, the portfolio
// store, the outcome journal, the optional Postgres trade history, and the
// engine that ties them together.
package svc

import (
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver

	"tradeagent/internal/config"
	"tradeagent/internal/store"
	brokerpkg "tradeagent/pkg/broker"
	_ "tradeagent/pkg/broker/binance" // register binance venue
	_ "tradeagent/pkg/broker/paper"   // register paper venue
	classifypkg "tradeagent/pkg/classify"
	enginepkg "tradeagent/pkg/engine"
	journalpkg "tradeagent/pkg/journal"
	llmpkg "tradeagent/pkg/llm"
	portfoliopkg "tradeagent/pkg/portfolio"
	riskpkg "tradeagent/pkg/risk"
)

// ServiceContext carries every constructed collaborator. cmd binaries build
// one and hand the engine to their run loop.
type ServiceContext struct {
	Config *config.Config

	LLMClient  llmpkg.LLMClient
	Classifier *classifypkg.Classifier
	Venue      brokerpkg.Adapter
	Portfolio  *portfoliopkg.Store
	Journal    *journalpkg.Writer
	History    *store.Store // nil without a Postgres DSN
	Engine     *enginepkg.Engine
}

// NewServiceContext wires the agent. It fails loudly on any misconfiguration
// rather than starting half-assembled.
func NewServiceContext(cfg *config.Config) (*ServiceContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("svc: config is required")
	}

	svc := &ServiceContext{Config: cfg}

	engineCfg := cfg.Engine.Value
	if engineCfg == nil {
		engineCfg = enginepkg.Default()
	}
	svc.Portfolio = portfoliopkg.New(engineCfg.Boundary())

	riskCfg := riskpkg.Default()
	if cfg.Risk.Value != nil {
		riskCfg = *cfg.Risk.Value
	}

	classifier, err := buildClassifier(cfg, svc)
	if err != nil {
		return nil, err
	}
	svc.Classifier = classifier

	venue, err := buildVenue(cfg)
	if err != nil {
		return nil, err
	}
	svc.Venue = venue

	writer, err := journalpkg.NewWriter(cfg.Journal.Dir)
	if err != nil {
		return nil, fmt.Errorf("svc: %w", err)
	}
	svc.Journal = writer

	var history enginepkg.Recorder
	if cfg.Postgres.DSN != "" {
		ttl := store.NewTTLSet(cfg.TTL)
		hist, err := store.New(cfg.Postgres, cfg.Cache, ttl)
		if err != nil {
			return nil, fmt.Errorf("svc: %w", err)
		}
		svc.History = hist
		history = hist
	}

	eng, err := enginepkg.New(engineCfg, enginepkg.Deps{
		Store:      svc.Portfolio,
		Venue:      venue,
		Classifier: classifier,
		Risk:       riskCfg,
		Journal:    writer,
		History:    history,
	})
	if err != nil {
		return nil, fmt.Errorf("svc: %w", err)
	}
	svc.Engine = eng

	return svc, nil
}

// Close releases resources owned by the context. The engine flushes its own
// snapshot inside Run; this only closes the journal and the LLM client.
func (s *ServiceContext) Close() error {
	var firstErr error
	if s.Journal != nil {
		if err := s.Journal.Close(); err != nil {
			firstErr = err
		}
	}
	if s.LLMClient != nil {
		if err := s.LLMClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildClassifier(cfg *config.Config, svc *ServiceContext) (*classifypkg.Classifier, error) {
	clsCfg := cfg.Classifier.Value
	if clsCfg == nil {
		clsCfg = classifypkg.Default()
	}

	var client llmpkg.LLMClient
	if clsCfg.Backend == classifypkg.BackendLLM {
		if cfg.LLM.Value == nil {
			return nil, fmt.Errorf("svc: classifier backend %q requires an llm section", clsCfg.Backend)
		}
		c, err := llmpkg.NewClient(cfg.LLM.Value)
		if err != nil {
			return nil, fmt.Errorf("svc: build llm client: %w", err)
		}
		client = c
		svc.LLMClient = c
	}

	classifier, err := classifypkg.New(clsCfg, client)
	if err != nil {
		return nil, fmt.Errorf("svc: build classifier: %w", err)
	}
	return classifier, nil
}

// buildVenue picks the execution venue. Paper mode always runs the simulated
// venue so a config pointing at live credentials cannot place real orders;
// live mode requires an explicit default venue in the broker section.
func buildVenue(cfg *config.Config) (brokerpkg.Adapter, error) {
	brokerCfg := cfg.Broker.Value

	if cfg.Paper() {
		venueCfg := &brokerpkg.VenueConfig{}
		if brokerCfg != nil {
			if named, ok := paperVenue(brokerCfg); ok {
				venueCfg = named
			}
		}
		return brokerpkg.GetAdapter("paper", venueCfg)
	}

	if brokerCfg == nil {
		return nil, fmt.Errorf("svc: live mode requires a broker section")
	}
	name := brokerCfg.Default
	if name == "" {
		return nil, fmt.Errorf("svc: live mode requires broker.default")
	}
	venueCfg, ok := brokerCfg.Venues[name]
	if !ok {
		return nil, fmt.Errorf("svc: broker default venue %q not defined", name)
	}
	if strings.EqualFold(venueCfg.Type, "paper") {
		return nil, fmt.Errorf("svc: live mode cannot run on the paper venue")
	}
	adapters, err := brokerCfg.BuildAdapters()
	if err != nil {
		return nil, fmt.Errorf("svc: %w", err)
	}
	return adapters[name], nil
}

// paperVenue returns the first venue of type paper, so a paper-mode run can
// still honour a configured starting balance.
func paperVenue(cfg *brokerpkg.Config) (*brokerpkg.VenueConfig, bool) {
	if v, ok := cfg.Venues[cfg.Default]; ok && strings.EqualFold(v.Type, "paper") {
		return v, true
	}
	for _, v := range cfg.Venues {
		if strings.EqualFold(v.Type, "paper") {
			return v, true
		}
	}
	return nil, false
}
