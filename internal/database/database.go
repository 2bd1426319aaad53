// Package database stores the locally usable handles of provisioned databases.
package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ProviderRedisCloud tags databases imported from the cloud provisioning API.
const ProviderRedisCloud = "RE_CLOUD"

// CloudDetails links a local handle back to the remote resource.
type CloudDetails struct {
	SubscriptionID int  `json:"subscriptionId"`
	DatabaseID     int  `json:"databaseId"`
	Free           bool `json:"free"`
}

// Descriptor is everything needed to connect to a provisioned database.
type Descriptor struct {
	Name     string       `json:"name"`
	Host     string       `json:"host"`
	Port     int          `json:"port"`
	Username string       `json:"username,omitempty"`
	Password string       `json:"-"`
	TLS      bool         `json:"tls"`
	Provider string       `json:"provider"`
	Cloud    CloudDetails `json:"cloudDetails"`
}

// Addr returns host:port.
func (d Descriptor) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Validate checks the descriptor carries a reachable address.
func (d Descriptor) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("port %d out of range", d.Port)
	}
	return nil
}

// Database is the local resource handle returned once a workflow finishes.
type Database struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Descriptor
}

// Repository persists finished resources. Implementations must be safe for
// concurrent use: independent workflows share one repository.
type Repository interface {
	// Create stores the descriptor and returns the new local handle.
	Create(ctx context.Context, d Descriptor) (*Database, error)

	// Get returns a stored handle.
	Get(ctx context.Context, id string) (*Database, error)

	// Ready checks the backing store is reachable.
	Ready(ctx context.Context) error
}

// Verifier checks a descriptor points at a live endpoint before it is stored.
type Verifier interface {
	Verify(ctx context.Context, d Descriptor) error
}
