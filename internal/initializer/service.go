package initializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mongoinit/pkg/logger"
	"mongoinit/pkg/report"
	"mongoinit/pkg/schema"

	"go.uber.org/zap"
)

// Database is the set of operations a run needs from the target database.
type Database interface {
	CreateCollection(ctx context.Context, name string) error
	CreateIndex(ctx context.Context, idx schema.Index) (string, error)
	CreateUser(ctx context.Context, u schema.User) error
	ListCollections(ctx context.Context) ([]string, error)
	ListIndexes(ctx context.Context, collection string) ([]schema.IndexInfo, error)
}

// Service applies a schema plan to a database.
type Service struct {
	logger *logger.Logger
	db     Database
	plan   schema.Plan
	now    func() time.Time
}

// NewService creates a new initializer for the plan
func NewService(l *logger.Logger, db Database, plan schema.Plan) *Service {
	return &Service{
		logger: l.With(zap.String("database", plan.Database)),
		db:     db,
		plan:   plan,
		now:    time.Now,
	}
}

// Run ensures the planned collections and indexes exist, then tries to create
// the application user. Collection "already exists" errors and every user
// error are tolerated; anything else stops the run. The report is returned
// in both cases.
func (s *Service) Run(ctx context.Context) (*report.RunReport, error) {
	rep := report.New(s.plan.Database, s.now())

	if err := s.plan.Validate(); err != nil {
		rep.Finish(s.now(), err)
		return rep, err
	}

	s.logger.Info("initializing database",
		zap.Strings("collections", s.plan.Collections),
		zap.Int("indexes", len(s.plan.Indexes)),
	)

	if err := s.ensureCollections(ctx, rep); err != nil {
		rep.Finish(s.now(), err)
		return rep, err
	}
	if err := s.createIndexes(ctx, rep); err != nil {
		rep.Finish(s.now(), err)
		return rep, err
	}
	s.createUser(ctx, rep)

	rep.Finish(s.now(), nil)
	s.logger.Info("initialization complete", zap.Duration("took", rep.Duration()))
	return rep, nil
}

func (s *Service) ensureCollections(ctx context.Context, rep *report.RunReport) error {
	for _, name := range s.plan.Collections {
		err := s.db.CreateCollection(ctx, name)
		switch {
		case err == nil:
			rep.Add(report.KindCollection, name, report.OutcomeCreated, "")
			s.logger.Info("created collection", zap.String("collection", name))
		case errors.Is(err, schema.ErrCollectionExists):
			rep.Add(report.KindCollection, name, report.OutcomeExists, "")
			s.logger.Info("collection already exists", zap.String("collection", name))
		default:
			rep.Add(report.KindCollection, name, report.OutcomeFailed, err.Error())
			s.logger.Error("failed to create collection", err, zap.String("collection", name))
			return fmt.Errorf("ensure collection %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) createIndexes(ctx context.Context, rep *report.RunReport) error {
	for _, idx := range s.plan.Indexes {
		target := idx.Collection + "." + idx.Name()
		name, err := s.db.CreateIndex(ctx, idx)
		if err != nil {
			rep.Add(report.KindIndex, target, report.OutcomeFailed, err.Error())
			s.logger.Error("failed to create index", err, zap.String("index", target))
			return fmt.Errorf("create index %s: %w", target, err)
		}
		rep.Add(report.KindIndex, target, report.OutcomeCreated, "")
		s.logger.Info("index ready",
			zap.String("collection", idx.Collection),
			zap.String("index", name),
			zap.Bool("unique", idx.Unique),
		)
	}
	return nil
}

// createUser never fails the run: managed deployments commonly forbid
// createUser, and re-runs hit the existing account.
func (s *Service) createUser(ctx context.Context, rep *report.RunReport) {
	u := s.plan.User
	if u == nil {
		rep.Add(report.KindUser, "", report.OutcomeSkipped, "no application user configured")
		s.logger.Warn("no application user configured, skipping user creation")
		return
	}

	err := s.db.CreateUser(ctx, *u)
	switch {
	case err == nil:
		rep.Add(report.KindUser, u.Username, report.OutcomeCreated, "")
		s.logger.Info("created database user",
			zap.String("user", u.Username),
			zap.String("role", u.Role),
		)
	case errors.Is(err, schema.ErrUserExists):
		rep.Add(report.KindUser, u.Username, report.OutcomeExists, err.Error())
		s.logger.Warn("could not create database user: already exists",
			zap.String("user", u.Username),
			zap.Error(err),
		)
	case errors.Is(err, schema.ErrUnauthorized):
		rep.Add(report.KindUser, u.Username, report.OutcomeFailed, err.Error())
		s.logger.Warn("could not create database user: insufficient privileges, create it through the hosting provider instead",
			zap.String("user", u.Username),
			zap.Error(err),
		)
	default:
		rep.Add(report.KindUser, u.Username, report.OutcomeFailed, err.Error())
		s.logger.Warn("could not create database user",
			zap.String("user", u.Username),
			zap.Error(err),
		)
	}
}
