package cloudjob

import (
	"cloudjobs/internal/apperrors"
	"fmt"
)

// Data is the initial input of a root workflow. Which fields are required
// depends on the workflow.
type Data struct {
	PlanID           int    `json:"planId,omitempty"`
	Provider         string `json:"provider,omitempty"`
	Region           string `json:"region,omitempty"`
	SubscriptionName string `json:"subscriptionName,omitempty"`
	DatabaseName     string `json:"databaseName,omitempty"`
	SubscriptionID   int    `json:"subscriptionId,omitempty"`
	DatabaseID       int    `json:"databaseId,omitempty"`
}

type workflow struct {
	validate func(Data) error
	build    func(Options, Data) Runnable
}

var workflows = map[Name]workflow{
	NameCreateFreeSubscriptionAndDatabase: {
		validate: func(Data) error { return nil },
		build: func(o Options, d Data) Runnable {
			return newCreateFreeSubscriptionAndDatabaseJob(o, d)
		},
	},
	NameCreateFreeDatabase: {
		validate: requireIDs(true, false),
		build: func(o Options, d Data) Runnable {
			return newCreateFreeDatabaseJob(o, d)
		},
	},
	NameImportFreeDatabase: {
		validate: requireIDs(true, true),
		build: func(o Options, d Data) Runnable {
			return newImportFreeDatabaseJob(o, d)
		},
	},
}

func requireIDs(subscription, database bool) func(Data) error {
	return func(d Data) error {
		if subscription && d.SubscriptionID <= 0 {
			return apperrors.Validation("subscriptionId", "subscriptionId is required")
		}
		if database && d.DatabaseID <= 0 {
			return apperrors.Validation("databaseId", "databaseId is required")
		}
		return nil
	}
}

// Known reports whether name is a root workflow the factory can build.
func Known(name Name) bool {
	_, ok := workflows[name]
	return ok
}

// Names lists the root workflows.
func Names() []Name {
	return []Name{NameCreateFreeSubscriptionAndDatabase, NameCreateFreeDatabase, NameImportFreeDatabase}
}

// Validate checks data carries what the named workflow needs.
func Validate(name Name, data Data) error {
	wf, ok := workflows[name]
	if !ok {
		return apperrors.Validation("name", fmt.Sprintf("unknown job %q", name))
	}
	if data.PlanID < 0 {
		return apperrors.Validation("planId", "planId must not be negative")
	}
	return wf.validate(data)
}

// Build creates the root job for name.
func Build(name Name, opts Options, data Data) (Runnable, error) {
	if err := Validate(name, data); err != nil {
		return nil, err
	}
	return workflows[name].build(opts, data), nil
}
