// Package observability provides the service's OpenTelemetry metrics,
// exported in Prometheus format.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrWorkflow  = "workflow"
	attrOutcome   = "outcome"
	attrErrorKind = "error_kind"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, normalizePath(path))
}

// statusAttr groups codes as 2xx, 4xx, 5xx.
func statusAttr(code int) attribute.KeyValue {
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func workflowAttr(name string) attribute.KeyValue {
	return attribute.String(attrWorkflow, name)
}

func outcomeAttr(status string) attribute.KeyValue {
	return attribute.String(attrOutcome, status)
}

func errorKindAttr(kind string) attribute.KeyValue {
	if kind == "" {
		kind = "none"
	}
	return attribute.String(attrErrorKind, kind)
}

var idRoutes = []struct{ prefix, param string }{
	{"/v1/cloud/jobs/", "{jobId}"},
	{"/v1/cloud/databases/", "{databaseId}"},
}

// normalizePath collapses job and database IDs so each route is one series.
func normalizePath(path string) string {
	for _, r := range idRoutes {
		if strings.HasPrefix(path, r.prefix) && len(path) > len(r.prefix) {
			return r.prefix + r.param
		}
	}
	return path
}
