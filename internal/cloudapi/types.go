package cloudapi

import (
	"fmt"
	"net"
	"strconv"
)

// Credentials authenticate against the provisioning API. Opaque to the
// workflow engine and passed by value down the whole job tree.
type Credentials struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecretKey"`
}

// Empty reports whether either half of the key pair is missing.
func (c Credentials) Empty() bool {
	return c.APIKey == "" || c.APISecret == ""
}

// String hides the secret from logs.
func (c Credentials) String() string {
	if c.APIKey == "" {
		return "Credentials{}"
	}
	return fmt.Sprintf("Credentials{apiKey:%s...}", c.APIKey[:min(4, len(c.APIKey))])
}

// TaskStatus is the remote status of an asynchronous operation.
type TaskStatus string

const (
	TaskInitialized TaskStatus = "initialized"
	TaskReceived    TaskStatus = "received"
	TaskInProgress  TaskStatus = "processing-in-progress"
	TaskCompleted   TaskStatus = "processing-completed"
	TaskError       TaskStatus = "processing-error"
)

// TaskFailure is the remote failure description attached to a failed task.
type TaskFailure struct {
	Type        string `json:"type"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// TaskResponse holds what a finished task produced.
type TaskResponse struct {
	ResourceID *int         `json:"resourceId,omitempty"`
	Error      *TaskFailure `json:"error,omitempty"`
}

// Task is the provisioning API's handle for an in-flight operation.
type Task struct {
	ID          string       `json:"taskId"`
	CommandType string       `json:"commandType,omitempty"`
	Status      TaskStatus   `json:"status"`
	Description string       `json:"description,omitempty"`
	Response    TaskResponse `json:"response"`
}

// Terminal reports whether the task will not change status anymore.
func (t Task) Terminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskError
}

// ResourceID returns the identifier of the resource the task created, if any.
func (t Task) ResourceID() (int, bool) {
	if t.Response.ResourceID == nil {
		return 0, false
	}
	return *t.Response.ResourceID, true
}

// FailureReason describes why a task ended in processing-error.
func (t Task) FailureReason() string {
	if t.Response.Error != nil && t.Response.Error.Description != "" {
		return t.Response.Error.Description
	}
	if t.Description != "" {
		return t.Description
	}
	return "task " + t.ID + " failed"
}

// Plan is a fixed (essentials) subscription plan.
type Plan struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Size     float64 `json:"size"`
	Provider string  `json:"provider"`
	Region   string  `json:"region"`
	Price    float64 `json:"price"`
}

// Free reports whether the plan costs nothing.
func (p Plan) Free() bool {
	return p.Price == 0
}

// SubscriptionStatus is the remote status of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPending  SubscriptionStatus = "pending"
	SubscriptionError    SubscriptionStatus = "error"
	SubscriptionDeleting SubscriptionStatus = "deleting"
)

// Subscription is a snapshot of a fixed subscription.
type Subscription struct {
	ID       int                `json:"id"`
	Name     string             `json:"name"`
	Status   SubscriptionStatus `json:"status"`
	PlanID   int                `json:"planId"`
	PlanName string             `json:"planName,omitempty"`
	Provider string             `json:"provider,omitempty"`
	Region   string             `json:"region,omitempty"`
	Price    float64            `json:"price"`
}

// Free reports whether the subscription is on a free plan.
func (s Subscription) Free() bool {
	return s.Price == 0
}

// Usable reports whether the subscription can host a database now or soon.
func (s Subscription) Usable() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionPending
}

// DatabaseStatus is the remote status of a database.
type DatabaseStatus string

const (
	DatabaseDraft         DatabaseStatus = "draft"
	DatabasePending       DatabaseStatus = "pending"
	DatabaseActive        DatabaseStatus = "active"
	DatabaseActivePending DatabaseStatus = "active-change-pending"
	DatabaseError         DatabaseStatus = "error"
	DatabaseDeleting      DatabaseStatus = "deleting"
)

// DatabaseSecurity carries the credentials needed to connect.
type DatabaseSecurity struct {
	Password string `json:"password,omitempty"`
	Username string `json:"username,omitempty"`
	SSL      bool   `json:"sslClientAuthentication,omitempty"`
}

// Database is a snapshot of a database in a fixed subscription.
type Database struct {
	ID             int              `json:"databaseId"`
	SubscriptionID int              `json:"subscriptionId,omitempty"`
	Name           string           `json:"name"`
	Status         DatabaseStatus   `json:"status"`
	Protocol       string           `json:"protocol,omitempty"`
	PublicEndpoint string           `json:"publicEndpoint,omitempty"`
	Security       DatabaseSecurity `json:"security"`
}

// InProgress reports whether the database is still being provisioned and can be reused.
func (d Database) InProgress() bool {
	return d.Status == DatabaseDraft || d.Status == DatabasePending
}

// Active reports whether the database accepts connections.
func (d Database) Active() bool {
	return d.Status == DatabaseActive
}

// Endpoint splits the public endpoint into host and port.
func (d Database) Endpoint() (string, int, error) {
	if d.PublicEndpoint == "" {
		return "", 0, fmt.Errorf("database %d has no public endpoint", d.ID)
	}
	host, portStr, err := net.SplitHostPort(d.PublicEndpoint)
	if err != nil {
		return "", 0, fmt.Errorf("invalid endpoint %q: %w", d.PublicEndpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in endpoint %q: %w", d.PublicEndpoint, err)
	}
	return host, port, nil
}
