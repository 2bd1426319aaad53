package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"cloudjobs/internal/cloudapi"
	"cloudjobs/internal/database"
	"context"
	"errors"
	"fmt"
)

// newImportDatabaseJob stores the connection details of an active database
// in the local repository. The repository is written exactly once.
func newImportDatabaseJob(opts Options, db *cloudapi.Database) *Job[*database.Database] {
	return newJob(NameImportDatabase, opts, func(ctx context.Context, c *core) (*database.Database, error) {
		d, err := descriptorFor(db)
		if err != nil {
			return nil, err
		}

		if c.opts.Verifier != nil {
			_, err := poll(ctx, c, "verify "+d.Addr(), c.opts.Budgets.Connect, func(ctx context.Context) (struct{}, bool, error) {
				err := c.opts.Verifier.Verify(ctx, d)
				switch {
				case err == nil:
					return struct{}{}, true, nil
				case errors.Is(err, apperrors.ErrUnauthorized):
					return struct{}{}, false, err
				default:
					return struct{}{}, false, apperrors.Transient("verify", err)
				}
			})
			if err != nil {
				return nil, err
			}
		}

		if err := c.checkSignal(ctx); err != nil {
			return nil, err
		}
		stored, err := c.opts.Repository.Create(ctx, d)
		if err != nil {
			return nil, err
		}
		c.logger.Info("Database imported", "databaseId", stored.ID, "addr", d.Addr())
		return stored, nil
	})
}

func descriptorFor(db *cloudapi.Database) (database.Descriptor, error) {
	host, port, err := db.Endpoint()
	if err != nil {
		return database.Descriptor{}, apperrors.Unexpected("import database", err.Error())
	}
	name := db.Name
	if name == "" {
		name = fmt.Sprintf("database-%d", db.ID)
	}
	return database.Descriptor{
		Name:     name,
		Host:     host,
		Port:     port,
		Username: db.Security.Username,
		Password: db.Security.Password,
		TLS:      db.Security.SSL,
		Provider: database.ProviderRedisCloud,
		Cloud: database.CloudDetails{
			SubscriptionID: db.SubscriptionID,
			DatabaseID:     db.ID,
			Free:           true,
		},
	}, nil
}
