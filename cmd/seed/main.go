// Package main seeds a demonstration negotiation pipeline.
//
// The seed runs the full chain end to end against the in-memory store:
// parties are registered, an opportunity is drafted and published, a
// proposal is negotiated to mutual acceptance, the generated contract
// is signed, and an engagement with milestones is driven to completion.
// Party fixtures load from seed.yaml when present; built-in defaults
// apply otherwise.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"collabforge.io/forge/internal/config"
	"collabforge.io/forge/internal/contract"
	"collabforge.io/forge/internal/domain"
	"collabforge.io/forge/internal/engagement"
	"collabforge.io/forge/internal/milestone"
	"collabforge.io/forge/internal/negotiation"
	"collabforge.io/forge/internal/notification"
	"collabforge.io/forge/internal/party"
	"collabforge.io/forge/internal/pkg/logger"
	"collabforge.io/forge/internal/pkg/worker"
	"collabforge.io/forge/internal/registry"
	"collabforge.io/forge/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

// partyFixture is one entry in seed.yaml.
type partyFixture struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Verified bool   `yaml:"verified"`
}

type seedFixtures struct {
	Parties []partyFixture `yaml:"parties"`
}

func defaultFixtures() seedFixtures {
	return seedFixtures{
		Parties: []partyFixture{
			{ID: "party-acme", Type: string(domain.PartyOrganization), Verified: true},
			{ID: "party-jdoe", Type: string(domain.PartyIndividual), Verified: true},
		},
	}
}

func loadFixtures(path string) (seedFixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultFixtures(), nil
		}
		return seedFixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	var f seedFixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return seedFixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	if len(f.Parties) < 2 {
		return seedFixtures{}, fmt.Errorf("fixtures must define at least two parties")
	}
	return f, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:  cfg.Worker.GeneralPoolSize,
		DispatchPoolSize: cfg.Worker.DispatchPoolSize,
	})
	if err != nil {
		return fmt.Errorf("init worker pools: %w", err)
	}
	defer pools.Shutdown()

	fixtures, err := loadFixtures("seed.yaml")
	if err != nil {
		return err
	}
	resolver := party.NewStaticResolver()
	for _, p := range fixtures.Parties {
		resolver.Add(domain.PartyRef{
			ID:       p.ID,
			Type:     domain.PartyType(p.Type),
			Verified: p.Verified,
		})
	}
	owner, counterpart := fixtures.Parties[0].ID, fixtures.Parties[1].ID

	st := store.NewMemory()
	events := domain.NewEventDispatcher()

	opportunities := registry.New(st, resolver, events)
	proposals := negotiation.New(st, resolver, events, opportunities)
	contracts := contract.New(st, resolver, events)
	contracts.RegisterHooks(events)
	engagements := engagement.New(st, resolver, events)
	milestones := milestone.New(st, resolver, events)
	notification.NewTriggers(notification.LogSender{}, st, pools).RegisterHooks(events)

	logger.Info("Starting pipeline seed...")

	o, err := opportunities.Create(ctx, registry.CreateSpec{
		Intent:         domain.IntentRequestService,
		Title:          "Warehouse automation rollout",
		Description:    "Conveyor retrofit and WMS integration for the central depot",
		Scope:          domain.ScopeRef{Type: domain.ScopeProject, ID: "proj-depot"},
		Location:       "Rotterdam",
		PaymentTerms:   "NET30",
		CreatorPartyID: owner,
	})
	if err != nil {
		return fmt.Errorf("create opportunity: %w", err)
	}
	if o, err = opportunities.Publish(ctx, o.ID, owner, o.Generation); err != nil {
		return fmt.Errorf("publish opportunity: %w", err)
	}

	p, err := proposals.Submit(ctx, o.ID, counterpart, domain.Terms{
		Total:        17500000,
		Currency:     "EUR",
		PaymentTerms: "NET30",
		Details:      map[string]interface{}{"summary": "Retrofit of lines 1-4 including commissioning"},
	}, "Initial offer")
	if err != nil {
		return fmt.Errorf("submit proposal: %w", err)
	}

	p, err = proposals.ProposeNewVersion(ctx, p.ID, p.CurrentVersion, domain.Terms{
		Total:        16500000,
		Currency:     "EUR",
		PaymentTerms: "NET45",
		Details:      map[string]interface{}{"summary": "Retrofit of lines 1-4, commissioning in two phases"},
	}, "Counter: longer payment window, phased commissioning", owner)
	if err != nil {
		return fmt.Errorf("counter proposal: %w", err)
	}

	if p, err = proposals.Accept(ctx, p.ID, domain.RoleOther, p.CurrentVersion, counterpart); err != nil {
		return fmt.Errorf("counterpart accept: %w", err)
	}
	if p, err = proposals.Accept(ctx, p.ID, domain.RoleOwner, p.CurrentVersion, owner); err != nil {
		return fmt.Errorf("owner accept: %w", err)
	}
	logger.Info("proposal finalized",
		zap.String("proposal_id", p.ID),
		zap.Int("accepted_version", *p.Acceptance.MutuallyAcceptedVersion),
	)

	// The finalization hook generated the contract; fetch it by source.
	c, err := contracts.GetBySourceProposal(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("fetch generated contract: %w", err)
	}
	if c, err = contracts.Sign(ctx, c.ID, c.BuyerPartyID, c.Generation); err != nil {
		return fmt.Errorf("sign contract: %w", err)
	}

	e, err := engagements.Create(ctx, c.ID,
		domain.ScopeRef{Type: domain.ScopeSubProject, ID: "proj-depot/line-1"},
		"retrofit", c.ProviderPartyID)
	if err != nil {
		return fmt.Errorf("plan engagement: %w", err)
	}
	if e, err = engagements.Start(ctx, e.ID, time.Now().UTC(), c.ProviderPartyID, e.Generation); err != nil {
		return fmt.Errorf("start engagement: %w", err)
	}

	m, err := milestones.Create(ctx, e.ID, "Line 1 mechanical install",
		domain.MilestoneDeliverable, time.Now().UTC().Add(30*24*time.Hour), c.ProviderPartyID)
	if err != nil {
		return fmt.Errorf("create milestone: %w", err)
	}
	if m, err = milestones.Advance(ctx, m.ID, domain.MilestoneInProgress, c.ProviderPartyID, m.Generation); err != nil {
		return fmt.Errorf("advance milestone: %w", err)
	}
	if m, err = milestones.Advance(ctx, m.ID, domain.MilestoneCompleted, c.ProviderPartyID, m.Generation); err != nil {
		return fmt.Errorf("complete milestone: %w", err)
	}

	if e, err = engagements.Complete(ctx, e.ID, c.ProviderPartyID, e.Generation); err != nil {
		return fmt.Errorf("complete engagement: %w", err)
	}

	logger.Info("Pipeline seed completed",
		zap.String("opportunity_id", o.ID),
		zap.String("proposal_id", p.ID),
		zap.String("contract_id", c.ID),
		zap.String("engagement_id", e.ID),
		zap.String("milestone_id", m.ID),
	)
	return nil
}
