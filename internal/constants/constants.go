package constants

import "time"

const (
	CacheKeyPrefix = "flipswitch:"

	DefaultCacheTTL = 5 * time.Minute
	CacheTimeout    = 500 * time.Millisecond
	StoreTimeout    = 5 * time.Second
)

const (
	EventChannelPrefix = "flag-events:"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultAuditPageSize = 10
	MaxAuditPageSize     = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

const (
	DefaultTenant = "default"
)

const (
	DefaultMongoDBName = "flipswitch"
)
