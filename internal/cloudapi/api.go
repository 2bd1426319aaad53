// Package cloudapi is the client side of the cloud provisioning API.
//
// Every call is a fallible round trip returning a fresh snapshot. Failures are
// classified through apperrors so callers can tell rejected credentials
// (ErrUnauthorized) from blips worth repeating (ErrTransient).
package cloudapi

import "context"

// API is the subset of the provisioning API the workflow jobs drive.
type API interface {
	// ListFixedPlans returns the plans available for fixed subscriptions.
	ListFixedPlans(ctx context.Context, creds Credentials) ([]Plan, error)

	// ListFixedSubscriptions returns the account's fixed subscriptions.
	ListFixedSubscriptions(ctx context.Context, creds Credentials) ([]Subscription, error)

	// GetFixedSubscription returns one subscription.
	GetFixedSubscription(ctx context.Context, creds Credentials, id int) (*Subscription, error)

	// CreateFreeSubscription starts creating a subscription on planID.
	CreateFreeSubscription(ctx context.Context, creds Credentials, planID int, name string) (*Task, error)

	// ListFixedDatabases returns the databases of a subscription.
	ListFixedDatabases(ctx context.Context, creds Credentials, subscriptionID int) ([]Database, error)

	// GetFixedDatabase returns one database.
	GetFixedDatabase(ctx context.Context, creds Credentials, subscriptionID, databaseID int) (*Database, error)

	// CreateFreeDatabase starts creating a database in the subscription.
	CreateFreeDatabase(ctx context.Context, creds Credentials, subscriptionID int, name string) (*Task, error)

	// GetTask returns the current snapshot of an asynchronous operation.
	GetTask(ctx context.Context, creds Credentials, taskID string) (*Task, error)
}
