package job

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudapi"
	"cloudjobs/internal/cloudjob"
	"cloudjobs/internal/database"
	"context"
	"sync/atomic"
	"time"
)

// databaseAPI serves a single database. Only the calls made by
// import-free-database are supported.
type databaseAPI struct {
	status atomic.Value // cloudapi.DatabaseStatus
}

func newDatabaseAPI(status cloudapi.DatabaseStatus) *databaseAPI {
	a := &databaseAPI{}
	a.status.Store(status)
	return a
}

func (a *databaseAPI) GetFixedDatabase(_ context.Context, _ cloudapi.Credentials, subscriptionID, databaseID int) (*cloudapi.Database, error) {
	return &cloudapi.Database{
		ID:             databaseID,
		SubscriptionID: subscriptionID,
		Name:           "free-db",
		Status:         a.status.Load().(cloudapi.DatabaseStatus),
		PublicEndpoint: "redis-12000.c1.us-east-1.ec2.cloud.example.com:12000",
	}, nil
}

func (a *databaseAPI) unsupported(op string) error {
	return apperrors.Unexpected(op, "not supported by the test API")
}

func (a *databaseAPI) ListFixedPlans(context.Context, cloudapi.Credentials) ([]cloudapi.Plan, error) {
	return nil, a.unsupported("ListFixedPlans")
}

func (a *databaseAPI) ListFixedSubscriptions(context.Context, cloudapi.Credentials) ([]cloudapi.Subscription, error) {
	return nil, a.unsupported("ListFixedSubscriptions")
}

func (a *databaseAPI) GetFixedSubscription(context.Context, cloudapi.Credentials, int) (*cloudapi.Subscription, error) {
	return nil, a.unsupported("GetFixedSubscription")
}

func (a *databaseAPI) CreateFreeSubscription(context.Context, cloudapi.Credentials, int, string) (*cloudapi.Task, error) {
	return nil, a.unsupported("CreateFreeSubscription")
}

func (a *databaseAPI) ListFixedDatabases(context.Context, cloudapi.Credentials, int) ([]cloudapi.Database, error) {
	return nil, a.unsupported("ListFixedDatabases")
}

func (a *databaseAPI) CreateFreeDatabase(context.Context, cloudapi.Credentials, int, string) (*cloudapi.Task, error) {
	return nil, a.unsupported("CreateFreeDatabase")
}

func (a *databaseAPI) GetTask(context.Context, cloudapi.Credentials, string) (*cloudapi.Task, error) {
	return nil, a.unsupported("GetTask")
}

var _ cloudapi.API = (*databaseAPI)(nil)

var testCreds = cloudapi.Credentials{APIKey: "key", APISecret: "secret"}

// testDeps polls fast when the database is active and slowly otherwise, so
// a pending database keeps its workflow running until cancelled.
func testDeps(api cloudapi.API) cloudjob.Deps {
	fast := cloudjob.PollConfig{Interval: 5 * time.Millisecond, Timeout: 2 * time.Second}
	return cloudjob.Deps{
		API:        api,
		Repository: database.NewMemoryRepository(),
		Budgets: cloudjob.Budgets{
			Task:         fast,
			Subscription: fast,
			Database:     cloudjob.PollConfig{Interval: 10 * time.Second, Timeout: time.Minute},
			Connect:      fast,
		},
	}
}

func importRequest(id string) *Request {
	return &Request{
		ID:          id,
		Name:        cloudjob.NameImportFreeDatabase,
		Data:        cloudjob.Data{SubscriptionID: 7, DatabaseID: 42},
		Credentials: testCreds,
	}
}
