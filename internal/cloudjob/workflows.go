package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudapi"
	"cloudjobs/internal/database"
	"context"
	"errors"
)

// checkCredentials fails fast before any remote call when the key pair is incomplete.
func checkCredentials(c *core) error {
	c.setStep(StepCredentials)
	if c.opts.Credentials.Empty() {
		return apperrors.Unauthorized("credentials", errors.New("api key and secret are required"))
	}
	return nil
}

// provisionDatabase runs the database phase for one subscription: ensure a
// database exists, wait for it to turn active, then import it.
func provisionDatabase(ctx context.Context, c *core, subscriptionID int, name string) (*database.Database, error) {
	c.setStep(StepDatabase)
	db, err := runChild(ctx, c, func(o Options) *Job[*cloudapi.Database] {
		return newEnsureFreeDatabaseJob(o, subscriptionID, name)
	})
	if err != nil {
		return nil, err
	}
	return importActiveDatabase(ctx, c, subscriptionID, db.ID)
}

func importActiveDatabase(ctx context.Context, c *core, subscriptionID, databaseID int) (*database.Database, error) {
	active, err := runChild(ctx, c, func(o Options) *Job[*cloudapi.Database] {
		return newWaitForActiveDatabaseJob(o, subscriptionID, databaseID)
	})
	if err != nil {
		return nil, err
	}

	c.setStep(StepImport)
	return runChild(ctx, c, func(o Options) *Job[*database.Database] {
		return newImportDatabaseJob(o, active)
	})
}

// newCreateFreeSubscriptionAndDatabaseJob provisions a free database from
// scratch: subscription, database, activation, import.
func newCreateFreeSubscriptionAndDatabaseJob(opts Options, data Data) *Job[*database.Database] {
	return newJob(NameCreateFreeSubscriptionAndDatabase, opts, func(ctx context.Context, c *core) (*database.Database, error) {
		if err := checkCredentials(c); err != nil {
			return nil, err
		}

		c.setStep(StepSubscription)
		sub, err := runChild(ctx, c, func(o Options) *Job[*cloudapi.Subscription] {
			return newEnsureFreeSubscriptionJob(o, SubscriptionRequest{
				PlanID:   data.PlanID,
				Provider: data.Provider,
				Region:   data.Region,
				Name:     data.SubscriptionName,
			})
		})
		if err != nil {
			return nil, err
		}

		return provisionDatabase(ctx, c, sub.ID, data.DatabaseName)
	})
}

// newCreateFreeDatabaseJob provisions a database in an existing subscription.
func newCreateFreeDatabaseJob(opts Options, data Data) *Job[*database.Database] {
	return newJob(NameCreateFreeDatabase, opts, func(ctx context.Context, c *core) (*database.Database, error) {
		if err := checkCredentials(c); err != nil {
			return nil, err
		}
		return provisionDatabase(ctx, c, data.SubscriptionID, data.DatabaseName)
	})
}

// newImportFreeDatabaseJob imports a database that was provisioned elsewhere,
// waiting for it to become active first.
func newImportFreeDatabaseJob(opts Options, data Data) *Job[*database.Database] {
	return newJob(NameImportFreeDatabase, opts, func(ctx context.Context, c *core) (*database.Database, error) {
		if err := checkCredentials(c); err != nil {
			return nil, err
		}
		c.setStep(StepDatabase)
		return importActiveDatabase(ctx, c, data.SubscriptionID, data.DatabaseID)
	})
}
