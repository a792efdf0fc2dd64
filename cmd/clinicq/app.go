package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/config"
	"github.com/tbourn/go-clinic-queue/internal/domain"
	"github.com/tbourn/go-clinic-queue/internal/events"
	"github.com/tbourn/go-clinic-queue/internal/priority"
	"github.com/tbourn/go-clinic-queue/internal/repo"
	"github.com/tbourn/go-clinic-queue/internal/services"
	"github.com/tbourn/go-clinic-queue/internal/urgency"
)

// app is the fully wired engine shared by every subcommand.
type app struct {
	cfg config.Config
	log zerolog.Logger

	db    *gorm.DB
	bus   *events.Bus
	redis *events.RedisSink

	priority    *services.PriorityService
	tickets     *services.TicketService
	assessments *services.AssessmentService
	doctors     *services.DoctorService
}

// newApp opens storage, migrates it, loads the scoring profile and wires
// the services. The caller owns Close.
func newApp(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app, error) {
	profile, err := config.LoadProfile(cfg.Queue.ProfilePath)
	if err != nil {
		return nil, err
	}
	pcfg, err := scorerConfig(profile)
	if err != nil {
		return nil, err
	}
	scorer, err := priority.New(pcfg)
	if err != nil {
		return nil, fmt.Errorf("priority profile: %w", err)
	}
	engine, err := urgency.New(catalogFor(profile))
	if err != nil {
		return nil, fmt.Errorf("symptom catalog: %w", err)
	}

	db, err := repo.Open(cfg.DB, cfg.OTEL.Enabled)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sinks := []events.Sink{events.LogSink{Logger: log.With().Str("component", "events").Logger()}}
	rs, err := redisSink(ctx, cfg.Events, log)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	if rs != nil {
		sinks = append(sinks, rs)
	}
	bus := events.NewBus(cfg.Events.Buffer, sinks, events.WithLogger(log))

	prio := services.NewPriorityService(db, scorer)
	tickets := services.NewTicketService(db, services.NewSequenceAllocator(cfg.Queue.AllocationMaxRetries), prio, bus, cfg.Location())
	assessments := services.NewAssessmentService(db, engine, prio, bus)

	return &app{
		cfg:         cfg,
		log:         log,
		db:          db,
		bus:         bus,
		redis:       rs,
		priority:    prio,
		tickets:     tickets,
		assessments: assessments,
		doctors:     &services.DoctorService{DB: db},
	}, nil
}

// Close drains the event bus and closes the database.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.bus.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain events: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis sink: %w", err))
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// redisSink returns nil when REDIS_URL is unset.
func redisSink(ctx context.Context, cfg config.EventsConfig, log zerolog.Logger) (*events.RedisSink, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	codec, err := events.ParseCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	rs, err := events.NewRedisSink(cfg.RedisURL, cfg.Channel, codec)
	if err != nil {
		return nil, err
	}
	if err := rs.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("channel", cfg.Channel).Msg("redis not reachable at startup")
	}
	return rs, nil
}

// scorerConfig overlays the profile on the built-in priority configuration.
func scorerConfig(p config.Profile) (priority.Config, error) {
	cfg := priority.DefaultConfig()
	if w := p.Weights; w != nil {
		cfg.Weights = priority.Weights{
			Urgency:     w.Urgency,
			WaitingTime: w.WaitingTime,
			Category:    w.Category,
			Activity:    w.Activity,
			History:     w.History,
		}
	}
	for name, m := range p.CategoryMultipliers {
		cat, ok := domain.ParseCategory(name)
		if !ok || name == "" {
			return cfg, fmt.Errorf("priority profile: unknown category %q", name)
		}
		cfg.CategoryMultipliers[cat] = m
	}
	if len(p.RiskConditions) > 0 {
		cfg.RiskConditions = p.RiskConditions
	}
	if len(p.UrgencyKeywords) > 0 {
		cfg.UrgencyKeywords = p.UrgencyKeywords
	}
	return cfg, nil
}

// catalogFor returns the default catalog with the profile's symptom list.
func catalogFor(p config.Profile) urgency.Catalog {
	symptoms := make([]urgency.Symptom, 0, len(p.Symptoms))
	for _, s := range p.Symptoms {
		label := s.Label
		if label == "" {
			label = s.ID
		}
		symptoms = append(symptoms, urgency.Symptom{ID: s.ID, Label: label, Severity: urgency.Severity(s.Severity)})
	}
	return urgency.DefaultCatalog().WithSymptoms(symptoms)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
