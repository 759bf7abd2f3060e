package initializer

import (
	"context"
	"fmt"

	"mongoinit/pkg/schema"

	"go.uber.org/zap"
)

// VerifyResult lists what the plan expects but the database lacks.
type VerifyResult struct {
	Database           string         `json:"database"`
	MissingCollections []string       `json:"missing_collections,omitempty"`
	MissingIndexes     []schema.Index `json:"missing_indexes,omitempty"`
}

// OK reports whether nothing is missing.
func (r VerifyResult) OK() bool {
	return len(r.MissingCollections) == 0 && len(r.MissingIndexes) == 0
}

// Verify compares the database against the plan without changing it. An
// index only counts as present if its keys match exactly and it is unique
// whenever the plan requires uniqueness.
func (s *Service) Verify(ctx context.Context) (VerifyResult, error) {
	res := VerifyResult{Database: s.plan.Database}

	names, err := s.db.ListCollections(ctx)
	if err != nil {
		return res, fmt.Errorf("verify: %w", err)
	}
	present := make(map[string]bool, len(names))
	for _, n := range names {
		present[n] = true
	}

	for _, c := range s.plan.Collections {
		if !present[c] {
			res.MissingCollections = append(res.MissingCollections, c)
			s.logger.Warn("collection missing", zap.String("collection", c))
		}
	}

	indexes := make(map[string][]schema.IndexInfo)
	for _, want := range s.plan.Indexes {
		if !present[want.Collection] {
			res.MissingIndexes = append(res.MissingIndexes, want)
			continue
		}
		have, ok := indexes[want.Collection]
		if !ok {
			have, err = s.db.ListIndexes(ctx, want.Collection)
			if err != nil {
				return res, fmt.Errorf("verify: %w", err)
			}
			indexes[want.Collection] = have
		}
		if !satisfied(have, want) {
			res.MissingIndexes = append(res.MissingIndexes, want)
			s.logger.Warn("index missing",
				zap.String("collection", want.Collection),
				zap.String("index", want.Name()),
				zap.Bool("unique", want.Unique),
			)
		}
	}

	if res.OK() {
		s.logger.Info("database matches plan")
	}
	return res, nil
}

func satisfied(have []schema.IndexInfo, want schema.Index) bool {
	for _, h := range have {
		if h.Satisfies(want) {
			return true
		}
	}
	return false
}
