// Package domain defines the persistence models for the consistency backbone:
// the idempotency ledger, the transactional outbox, the per-consumer
// processed-event gate, upstream fact rows, and the projected revenue
// aggregates. These types are mapped with GORM and are shared across the
// repository and service layers.
package domain

import "time"

// IdempotencyRecord stores the authoritative result of a previously executed
// client mutation, keyed by (tenant_id, client_request_id, operation_name).
// At most one record exists per triple (enforced by a unique index); a record
// is written once, in the same transaction as the mutation it guards, and is
// never updated afterwards.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - TenantID / ClientRequestID / OperationName: the dedup triple.
//   - ResultSnapshot: JSON-serialized result returned to every retry.
//   - CreatedAt: timestamp managed by GORM.
type IdempotencyRecord struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	TenantID        string    `json:"tenant_id"         gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_tenant_req_op,priority:1"`
	ClientRequestID string    `json:"client_request_id" gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_tenant_req_op,priority:2"`
	OperationName   string    `json:"operation_name"    gorm:"type:varchar(128);not null;uniqueIndex:ux_idem_tenant_req_op,priority:3"`
	ResultSnapshot  string    `json:"result_snapshot"   gorm:"type:text;not null"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for IdempotencyRecord.
func (IdempotencyRecord) TableName() string { return "idempotency_records" }

// OutboxEvent is a domain event staged in the same transaction as the
// mutation that produced it. PublishedAt is NULL until the relay delivers the
// event; the transition NULL -> timestamp happens exactly once and is written
// only by the relay.
//
// EventID is globally unique and doubles as the consumer-side dedup key; it
// must never be reused across logically distinct events.
type OutboxEvent struct {
	ID          string     `json:"id"           gorm:"type:char(36);primaryKey"`
	TenantID    string     `json:"tenant_id"    gorm:"type:varchar(64);not null;index:idx_outbox_tenant"`
	EventType   string     `json:"event_type"   gorm:"type:varchar(128);not null;index:idx_outbox_type"`
	EventID     string     `json:"event_id"     gorm:"type:char(36);not null;uniqueIndex:ux_outbox_event_id"`
	Payload     string     `json:"payload"      gorm:"type:text;not null"`
	CreatedAt   time.Time  `json:"created_at"   gorm:"index:idx_outbox_created"`
	PublishedAt *time.Time `json:"published_at" gorm:"index:idx_outbox_published"`
}

// TableName returns the database table name for OutboxEvent.
func (OutboxEvent) TableName() string { return "outbox_events" }

// ProcessedEvent records that a named consumer has handled a given event.
// The unique (event_id, consumer_name) pair is the exactly-once-effect gate:
// its atomic insert-or-conflict stands in for a distributed lock, and rows
// are never deleted.
type ProcessedEvent struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	TenantID     string    `json:"tenant_id"     gorm:"type:varchar(64);not null;index:idx_processed_tenant"`
	EventID      string    `json:"event_id"      gorm:"type:char(36);not null;uniqueIndex:ux_processed_event_consumer,priority:1"`
	ConsumerName string    `json:"consumer_name" gorm:"type:varchar(128);not null;uniqueIndex:ux_processed_event_consumer,priority:2"`
	ProcessedAt  time.Time `json:"processed_at"  gorm:"not null"`
}

// TableName returns the database table name for ProcessedEvent.
func (ProcessedEvent) TableName() string { return "processed_events" }

// RevenueFact is the upstream fact row for one aggregated business
// transaction. It holds the last APPLIED absolute values for every numeric
// field that feeds an aggregate, so a correcting event can compute
// delta = newValue - lastAppliedValue instead of re-adding the full amount.
//
// Version is a per-source monotonic sequence carried in event payloads; the
// projector skips events older than the version already applied, which keeps
// corrections convergent under the relay's relaxed ordering.
type RevenueFact struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TenantID  string    `json:"tenant_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_fact_tenant_source,priority:1"`
	SourceID  string    `json:"source_id"  gorm:"type:char(36);not null;uniqueIndex:ux_fact_tenant_source,priority:2"`
	AccountID string    `json:"account_id" gorm:"type:varchar(64);not null"`
	Day       string    `json:"day"        gorm:"type:char(10);not null"`
	Amount    int64     `json:"amount"     gorm:"not null"`
	Fee       int64     `json:"fee"        gorm:"not null"`
	Version   int64     `json:"version"    gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for RevenueFact.
func (RevenueFact) TableName() string { return "revenue_facts" }

// AccountDailyRevenue is the primary read-model aggregate, keyed by
// (tenant, account, day). Accumulator columns are mutated only by commutative
// delta application (current + delta), never overwritten with absolute
// values, so redelivery and corrections are safe.
//
// Amounts are integer minor units (cents).
type AccountDailyRevenue struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	TenantID  string    `json:"tenant_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_acct_daily,priority:1"`
	AccountID string    `json:"account_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_acct_daily,priority:2"`
	Day       string    `json:"day"        gorm:"type:char(10);not null;uniqueIndex:ux_acct_daily,priority:3"`
	Revenue   int64     `json:"revenue"    gorm:"not null"`
	Fee       int64     `json:"fee"        gorm:"not null"`
	TxCount   int64     `json:"tx_count"   gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for AccountDailyRevenue.
func (AccountDailyRevenue) TableName() string { return "account_daily_revenue" }

// TenantDailyRevenue is the secondary (parent-dimension) aggregate the same
// deltas fan out to, keyed by (tenant, day).
type TenantDailyRevenue struct {
	ID        string    `json:"id"        gorm:"type:char(36);primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_tenant_daily,priority:1"`
	Day       string    `json:"day"       gorm:"type:char(10);not null;uniqueIndex:ux_tenant_daily,priority:2"`
	Revenue   int64     `json:"revenue"   gorm:"not null"`
	Fee       int64     `json:"fee"       gorm:"not null"`
	TxCount   int64     `json:"tx_count"  gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for TenantDailyRevenue.
func (TenantDailyRevenue) TableName() string { return "tenant_daily_revenue" }
