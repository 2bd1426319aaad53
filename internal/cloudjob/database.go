package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudapi"
	"context"
	"fmt"
	"strconv"
)

const defaultDatabaseName = "free-db"

// newEnsureFreeDatabaseJob makes sure the subscription has a database being
// provisioned. A draft or pending database is reused. Any other existing
// database is a conflict, since a free subscription holds only one.
func newEnsureFreeDatabaseJob(opts Options, subscriptionID int, name string) *Job[*cloudapi.Database] {
	return newJob(NameEnsureFreeDatabase, opts, func(ctx context.Context, c *core) (*cloudapi.Database, error) {
		dbs, err := c.opts.API.ListFixedDatabases(ctx, c.opts.Credentials, subscriptionID)
		if err != nil {
			return nil, err
		}

		for i := range dbs {
			if dbs[i].InProgress() {
				db := dbs[i]
				c.logger.Info("Reusing database in progress", "subscriptionId", subscriptionID, "databaseId", db.ID, "status", db.Status)
				return &db, nil
			}
		}
		if len(dbs) > 0 {
			existing := dbs[0]
			return nil, apperrors.Conflict("database", strconv.Itoa(existing.ID),
				fmt.Sprintf("free database already exists in subscription %d (database %d is %s)",
					subscriptionID, existing.ID, existing.Status))
		}

		if err := c.checkSignal(ctx); err != nil {
			return nil, err
		}
		if name == "" {
			name = defaultDatabaseName
		}
		task, err := c.opts.API.CreateFreeDatabase(ctx, c.opts.Credentials, subscriptionID, name)
		if err != nil {
			return nil, err
		}
		c.logger.Info("Free database requested", "subscriptionId", subscriptionID, "name", name)

		id, err := awaitResource(ctx, c, task, "database")
		if err != nil {
			return nil, err
		}
		return &cloudapi.Database{
			ID:             id,
			SubscriptionID: subscriptionID,
			Name:           name,
			Status:         cloudapi.DatabasePending,
		}, nil
	})
}

// newWaitForActiveDatabaseJob polls a database until it accepts connections.
func newWaitForActiveDatabaseJob(opts Options, subscriptionID, databaseID int) *Job[*cloudapi.Database] {
	return newJob(NameWaitForActiveDatabase, opts, func(ctx context.Context, c *core) (*cloudapi.Database, error) {
		op := fmt.Sprintf("wait for database %d/%d", subscriptionID, databaseID)
		return poll(ctx, c, op, c.opts.Budgets.Database, func(ctx context.Context) (*cloudapi.Database, bool, error) {
			db, err := c.opts.API.GetFixedDatabase(ctx, c.opts.Credentials, subscriptionID, databaseID)
			if err != nil {
				return nil, false, err
			}
			switch db.Status {
			case cloudapi.DatabaseActive:
				if db.SubscriptionID == 0 {
					db.SubscriptionID = subscriptionID
				}
				return db, true, nil
			case cloudapi.DatabaseError, cloudapi.DatabaseDeleting:
				return nil, false, apperrors.Unexpected(op, fmt.Sprintf("database %d is %s", databaseID, db.Status))
			default:
				return nil, false, nil
			}
		})
	})
}
