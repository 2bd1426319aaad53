package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudapi"
	"cloudjobs/internal/database"
	"context"
	"errors"
	"sync"
	"time"
)

var testCreds = cloudapi.Credentials{APIKey: "key", APISecret: "secret"}

// fastBudgets keeps polling tests quick.
func fastBudgets() Budgets {
	p := PollConfig{Interval: 5 * time.Millisecond, Timeout: 2 * time.Second, MaxTransientErrors: 3}
	return Budgets{Task: p, Subscription: p, Database: p, Connect: p}
}

// fakeAPI is an in-memory provisioning API. Tasks complete after
// pendingPolls in-progress snapshots.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	plans         []cloudapi.Plan
	subscriptions []cloudapi.Subscription
	databases     []cloudapi.Database

	// pendingPolls is how many times GetTask, GetFixedSubscription and
	// GetFixedDatabase report "not yet" before the resource is ready.
	pendingPolls int
	// omitResourceID makes completed tasks carry no resource id.
	omitResourceID bool
	// failTask makes tasks end in processing-error.
	failTask bool
	// taskErrors are returned by GetTask, in order, before any snapshot.
	taskErrors []error
	// neverActive keeps databases pending forever.
	neverActive bool
	// onGetDatabase runs on every GetFixedDatabase call.
	onGetDatabase func()

	nextSubscriptionID int
	nextDatabaseID     int
	tasks              map[string]int // task id -> resource id
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls: make(map[string]int),
		plans: []cloudapi.Plan{
			{ID: 10, Name: "paid", Provider: "AWS", Region: "us-east-1", Price: 7},
			{ID: 11, Name: "free", Provider: "AWS", Region: "us-east-1", Price: 0},
			{ID: 12, Name: "free", Provider: "GCP", Region: "europe-west1", Price: 0},
		},
		nextSubscriptionID: 100,
		nextDatabaseID:     200,
		tasks:              make(map[string]int),
	}
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) record(op string) int {
	f.calls[op]++
	return f.calls[op]
}

func (f *fakeAPI) ListFixedPlans(ctx context.Context, creds cloudapi.Credentials) ([]cloudapi.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListFixedPlans")
	return append([]cloudapi.Plan(nil), f.plans...), nil
}

func (f *fakeAPI) ListFixedSubscriptions(ctx context.Context, creds cloudapi.Credentials) ([]cloudapi.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListFixedSubscriptions")
	return append([]cloudapi.Subscription(nil), f.subscriptions...), nil
}

func (f *fakeAPI) GetFixedSubscription(ctx context.Context, creds cloudapi.Credentials, id int) (*cloudapi.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.record("GetFixedSubscription")
	status := cloudapi.SubscriptionActive
	if n <= f.pendingPolls {
		status = cloudapi.SubscriptionPending
	}
	return &cloudapi.Subscription{ID: id, Name: "free", Status: status}, nil
}

func (f *fakeAPI) CreateFreeSubscription(ctx context.Context, creds cloudapi.Credentials, planID int, name string) (*cloudapi.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateFreeSubscription")
	f.nextSubscriptionID++
	f.tasks["task-sub"] = f.nextSubscriptionID
	return &cloudapi.Task{ID: "task-sub", Status: cloudapi.TaskReceived}, nil
}

func (f *fakeAPI) ListFixedDatabases(ctx context.Context, creds cloudapi.Credentials, subscriptionID int) ([]cloudapi.Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListFixedDatabases")
	return append([]cloudapi.Database(nil), f.databases...), nil
}

func (f *fakeAPI) GetFixedDatabase(ctx context.Context, creds cloudapi.Credentials, subscriptionID, databaseID int) (*cloudapi.Database, error) {
	f.mu.Lock()
	n := f.record("GetFixedDatabase")
	hook := f.onGetDatabase
	status := cloudapi.DatabaseActive
	if f.neverActive || n <= f.pendingPolls {
		status = cloudapi.DatabasePending
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return &cloudapi.Database{
		ID:             databaseID,
		SubscriptionID: subscriptionID,
		Name:           "free-db",
		Status:         status,
		PublicEndpoint: "redis-1.example:12000",
		Security:       cloudapi.DatabaseSecurity{Password: "pw"},
	}, nil
}

func (f *fakeAPI) CreateFreeDatabase(ctx context.Context, creds cloudapi.Credentials, subscriptionID int, name string) (*cloudapi.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateFreeDatabase")
	f.nextDatabaseID++
	f.tasks["task-db"] = f.nextDatabaseID
	return &cloudapi.Task{ID: "task-db", Status: cloudapi.TaskReceived}, nil
}

func (f *fakeAPI) GetTask(ctx context.Context, creds cloudapi.Credentials, taskID string) (*cloudapi.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.record("GetTask")
	if len(f.taskErrors) > 0 {
		err := f.taskErrors[0]
		f.taskErrors = f.taskErrors[1:]
		return nil, err
	}

	task := &cloudapi.Task{ID: taskID, Status: cloudapi.TaskInProgress}
	if n <= f.pendingPolls {
		return task, nil
	}
	if f.failTask {
		task.Status = cloudapi.TaskError
		task.Response.Error = &cloudapi.TaskFailure{Description: "quota exceeded"}
		return task, nil
	}
	task.Status = cloudapi.TaskCompleted
	if !f.omitResourceID {
		id := f.tasks[taskID]
		task.Response.ResourceID = &id
	}
	return task, nil
}

var _ cloudapi.API = (*fakeAPI)(nil)

// countingRepository wraps the memory repository and counts writes.
type countingRepository struct {
	*database.MemoryRepository
	mu      sync.Mutex
	creates int
	err     error
}

func newCountingRepository() *countingRepository {
	return &countingRepository{MemoryRepository: database.NewMemoryRepository()}
}

func (r *countingRepository) Create(ctx context.Context, d database.Descriptor) (*database.Database, error) {
	r.mu.Lock()
	r.creates++
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.MemoryRepository.Create(ctx, d)
}

func (r *countingRepository) createCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// flakyVerifier fails the first failures calls.
type flakyVerifier struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (v *flakyVerifier) Verify(ctx context.Context, d database.Descriptor) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.calls <= v.failures {
		return errors.New("connection refused")
	}
	return nil
}

// rejectingVerifier reports the credentials as refused by the endpoint.
type rejectingVerifier struct {
	mu    sync.Mutex
	calls int
}

func (v *rejectingVerifier) Verify(ctx context.Context, d database.Descriptor) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return apperrors.Unauthorized("verify "+d.Addr(), errors.New("WRONGPASS invalid username-password pair"))
}

func testOptions(api cloudapi.API, repo database.Repository) Options {
	return Options{
		ID:          "wf-1",
		Signal:      NewSignal(context.Background()),
		Credentials: testCreds,
		API:         api,
		Repository:  repo,
		Budgets:     fastBudgets(),
	}
}
