// Package metrics provides constants used across metric definitions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace prefixes every docmigrate metric.
const Namespace = "docmigrate"

// Label values used when no more specific value exists.
const (
	LabelError   = "error"
	LabelUnknown = "unknown"
)

// Database operation label values.
const (
	OpDbQuery  = "db_query"
	OpDbRow    = "db_row"
	OpDbUpdate = "db_update"
)

var (
	// durationBuckets covers single object transfers, from a cached HEAD
	// to a multi-megabyte copy over a slow legacy link.
	durationBuckets = prometheus.ExponentialBuckets(0.005, 2, 14)

	// sizeBuckets covers document sizes from 1 KiB to 256 MiB.
	sizeBuckets = prometheus.ExponentialBuckets(1024, 4, 10)
)
