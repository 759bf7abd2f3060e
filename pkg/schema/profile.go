package schema

import "fmt"

// Profiles select which plan an initialization run applies.
const (
	// ProfileScript is the three-collection, three-index setup.
	ProfileScript = "script"
	// ProfileBackend adds the indexes the API server creates on startup.
	ProfileBackend = "backend"
)

// Collections only the backend profile creates.
const (
	CollectionWallets         = "wallets"
	CollectionPaymentRequests = "payment_requests"
)

// Profiles lists the known profile names.
func Profiles() []string {
	return []string{ProfileScript, ProfileBackend}
}

// PlanFor returns the plan for a named profile. An empty name selects
// ProfileScript.
func PlanFor(profile, database string) (Plan, error) {
	switch profile {
	case "", ProfileScript:
		return DefaultPlan(database), nil
	case ProfileBackend:
		return BackendPlan(database), nil
	}
	return Plan{}, fmt.Errorf("unknown profile %q (want one of %v)", profile, Profiles())
}

// BackendPlan extends DefaultPlan with the wallets and payment_requests
// collections and the snake_case indexes the API server queries by.
// The API stores user_id/created_at while the script indexes userId/createdAt,
// so both sets are kept.
func BackendPlan(database string) Plan {
	p := DefaultPlan(database)
	p.Collections = append(p.Collections, CollectionWallets, CollectionPaymentRequests)

	userNewest := []Key{{Field: "user_id", Order: Ascending}, {Field: "created_at", Order: Descending}}
	p.Indexes = append(p.Indexes,
		Index{Collection: CollectionUsers, Keys: []Key{{Field: "email", Order: Ascending}}},
		Index{Collection: CollectionWallets, Keys: []Key{{Field: "user_id", Order: Ascending}}, Unique: true},
		Index{Collection: CollectionTransactions, Keys: userNewest},
		Index{Collection: CollectionTransactions, Keys: []Key{{Field: "category", Order: Ascending}}},
		Index{Collection: CollectionGames, Keys: userNewest},
		Index{Collection: CollectionGames, Keys: []Key{{Field: "game_type", Order: Ascending}}},
		Index{Collection: CollectionGames, Keys: []Key{{Field: "created_at", Order: Descending}}},
		Index{Collection: CollectionPaymentRequests, Keys: userNewest},
		Index{Collection: CollectionPaymentRequests, Keys: []Key{{Field: "status", Order: Ascending}}},
	)
	return p
}
