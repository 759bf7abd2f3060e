package initializer

import (
	"context"
	"errors"
	"testing"

	"mongoinit/pkg/logger"
	"mongoinit/pkg/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func idIndex() schema.IndexInfo {
	return schema.IndexInfo{Name: "_id_", Keys: []schema.Key{{Field: "_id", Order: schema.Ascending}}}
}

func TestVerifyInitializedDatabase(t *testing.T) {
	plan := schema.DefaultPlan("betting")
	db := new(MockDatabase)
	db.On("ListCollections", mock.Anything).Return([]string{"games", "users", "transactions", "wallets"}, nil)
	db.On("ListIndexes", mock.Anything, "users").Return([]schema.IndexInfo{
		idIndex(),
		{Name: "uid_1", Keys: []schema.Key{{Field: "uid", Order: schema.Ascending}}, Unique: true},
	}, nil).Once()
	db.On("ListIndexes", mock.Anything, "transactions").Return([]schema.IndexInfo{
		idIndex(),
		{Name: "userId_1", Keys: []schema.Key{{Field: "userId", Order: schema.Ascending}}},
	}, nil).Once()
	db.On("ListIndexes", mock.Anything, "games").Return([]schema.IndexInfo{
		idIndex(),
		{Name: "createdAt_-1", Keys: []schema.Key{{Field: "createdAt", Order: schema.Descending}}},
	}, nil).Once()

	res, err := NewService(logger.Nop(), db, plan).Verify(context.Background())

	require.NoError(t, err)
	assert.True(t, res.OK())
	db.AssertExpectations(t)
}

func TestVerifyReportsMissing(t *testing.T) {
	plan := schema.DefaultPlan("betting")
	db := new(MockDatabase)
	db.On("ListCollections", mock.Anything).Return([]string{"users", "games"}, nil)
	db.On("ListIndexes", mock.Anything, "users").Return([]schema.IndexInfo{
		idIndex(),
		// present but not unique
		{Name: "uid_1", Keys: []schema.Key{{Field: "uid", Order: schema.Ascending}}},
	}, nil)
	db.On("ListIndexes", mock.Anything, "games").Return([]schema.IndexInfo{
		idIndex(),
		// wrong direction
		{Name: "createdAt_1", Keys: []schema.Key{{Field: "createdAt", Order: schema.Ascending}}},
	}, nil)

	res, err := NewService(logger.Nop(), db, plan).Verify(context.Background())

	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, []string{"transactions"}, res.MissingCollections)
	require.Len(t, res.MissingIndexes, 3)
	assert.Equal(t, "users", res.MissingIndexes[0].Collection)
	assert.Equal(t, "transactions", res.MissingIndexes[1].Collection)
	assert.Equal(t, "games", res.MissingIndexes[2].Collection)
	db.AssertNotCalled(t, "ListIndexes", mock.Anything, "transactions")
}

func TestVerifyListErrors(t *testing.T) {
	plan := schema.DefaultPlan("betting")

	db := new(MockDatabase)
	db.On("ListCollections", mock.Anything).Return(nil, errors.New("not authorized"))
	_, err := NewService(logger.Nop(), db, plan).Verify(context.Background())
	assert.Error(t, err)

	db = new(MockDatabase)
	db.On("ListCollections", mock.Anything).Return([]string{"users", "transactions", "games"}, nil)
	db.On("ListIndexes", mock.Anything, "users").Return(nil, errors.New("cursor killed"))
	_, err = NewService(logger.Nop(), db, plan).Verify(context.Background())
	assert.ErrorContains(t, err, "cursor killed")
}

func TestIndexInfoSatisfies(t *testing.T) {
	want := schema.Index{Collection: "users", Keys: []schema.Key{{Field: "uid", Order: schema.Ascending}}, Unique: true}

	assert.True(t, schema.IndexInfo{Keys: want.Keys, Unique: true}.Satisfies(want))
	assert.False(t, schema.IndexInfo{Keys: want.Keys}.Satisfies(want))
	assert.False(t, schema.IndexInfo{Keys: []schema.Key{{Field: "uid", Order: schema.Descending}}, Unique: true}.Satisfies(want))
	assert.False(t, schema.IndexInfo{Keys: append(want.Keys, schema.Key{Field: "email", Order: 1}), Unique: true}.Satisfies(want))

	nonUnique := schema.Index{Collection: "transactions", Keys: []schema.Key{{Field: "userId", Order: schema.Ascending}}}
	assert.True(t, schema.IndexInfo{Keys: nonUnique.Keys, Unique: true}.Satisfies(nonUnique))
}

func TestVerifyBackendProfileAgainstScriptDatabase(t *testing.T) {
	script := schema.DefaultPlan("betting")

	db := new(MockDatabase)
	db.On("ListCollections", mock.Anything).Return(script.Collections, nil)
	for _, c := range script.Collections {
		have := []schema.IndexInfo{idIndex()}
		for _, idx := range script.Indexes {
			if idx.Collection == c {
				have = append(have, schema.IndexInfo{Name: idx.Name(), Keys: idx.Keys, Unique: idx.Unique})
			}
		}
		db.On("ListIndexes", mock.Anything, c).Return(have, nil)
	}

	scriptRes, err := NewService(logger.Nop(), db, script).Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, scriptRes.OK())

	res, err := NewService(logger.Nop(), db, schema.BackendPlan("betting")).Verify(context.Background())
	require.NoError(t, err)

	assert.False(t, res.OK())
	assert.Equal(t, []string{"wallets", "payment_requests"}, res.MissingCollections)
	missing := make([]string, 0, len(res.MissingIndexes))
	for _, idx := range res.MissingIndexes {
		missing = append(missing, idx.Collection+"."+idx.Name())
	}
	assert.Equal(t, []string{
		"users.email_1",
		"wallets.user_id_1",
		"transactions.user_id_1_created_at_-1",
		"transactions.category_1",
		"games.user_id_1_created_at_-1",
		"games.game_type_1",
		"games.created_at_-1",
		"payment_requests.user_id_1_created_at_-1",
		"payment_requests.status_1",
	}, missing)
	db.AssertNotCalled(t, "ListIndexes", mock.Anything, "wallets")
}
