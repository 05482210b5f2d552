// Package db holds the entity structs and raw-SQL accessors for OrderFlow.
// Every table carries tenant_id, id, created_at, updated_at; query functions
// take a tenant id explicitly and filter by it, following the Tenant Guard
// contract in internal/tenant. The style (hand-written SQL with $-placeholders,
// sql.Null* for nullable columns, dynamic WHERE-clause assembly via argument
// counters) is carried over from the teacher's internal/db package.
package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// InboundMessage — an arrival event (C2, C3).
type InboundMessage struct {
	ID                string
	TenantID          string
	Source            string // EMAIL | UPLOAD
	ProviderMessageID sql.NullString
	SenderAddress     sql.NullString
	ReceivedAt        time.Time
	RawStorageKey     string
	Status            string // RECEIVED | STORED | PARSED | FAILED
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Document — one parsed attachment or upload (C3).
type Document struct {
	ID                string
	TenantID          string
	InboundMessageID  sql.NullString
	Filename          string
	MediaType         string
	SizeBytes         int64
	SHA256Hex         string
	RawStorageKey     string
	PageCount         sql.NullInt32
	TextCoverageRatio sql.NullFloat64
	LayoutFingerprint sql.NullString
	Status            string // UPLOADED | STORED | PROCESSING | EXTRACTED | FAILED
	DeletedAt         sql.NullTime
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ExtractionRun — one attempt to extract a Document (C4-C6).
type ExtractionRun struct {
	ID               string
	TenantID         string
	DocumentID       string
	ExtractorID      string // rule_v1 | llm_text_v1 | llm_vision_v1
	Status           string // PENDING | RUNNING | SUCCEEDED | FAILED
	StartedAt        sql.NullTime
	FinishedAt       sql.NullTime
	RuntimeMillis    sql.NullInt32
	CanonicalRecord  json.RawMessage // §6.1 canonical extraction record
	ErrorMessage     sql.NullString
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DraftOrder — the central entity (C11).
type DraftOrder struct {
	ID                     string
	TenantID               string
	SourceDocumentID       string
	CustomerID             sql.NullString
	ExternalOrderNumber    sql.NullString
	OrderDate              sql.NullTime
	Currency               sql.NullString
	DeliveryDate           sql.NullTime
	ShipToJSON             json.RawMessage
	BillToJSON             json.RawMessage
	Notes                  sql.NullString
	Status                 string
	ExtractionConfidence   float64
	CustomerConfidence     float64
	MatchingConfidence     float64
	ConfidenceScore        float64
	ReadyCheckJSON         json.RawMessage // {is_ready, blocking_reasons[], checked_at}
	TopCustomerCandidates  json.RawMessage // denormalized top-5 cache
	ApprovedBy             sql.NullString
	ApprovedAt             sql.NullTime
	ERPOrderID             sql.NullString
	ERPAckError            sql.NullString
	Version                int64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// DraftOrderLine — ordered child of DraftOrder (C9, C11).
type DraftOrderLine struct {
	ID                    string
	TenantID              string
	DraftOrderID          string
	LineNo                int
	CustomerSKURaw        string
	CustomerSKUNormalized string
	ProductDescription    sql.NullString
	Qty                   decimal.NullDecimal
	UoM                   sql.NullString
	UnitPrice             decimal.NullDecimal
	Currency              sql.NullString
	InternalSKU           sql.NullString
	MatchStatus           string // UNMATCHED | SUGGESTED | MATCHED | OVERRIDDEN
	MatchConfidence       float64
	MatchMethod           sql.NullString
	MatchDebugJSON        json.RawMessage
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Product — catalog item (C9, C10).
type Product struct {
	ID             string
	TenantID       string
	InternalSKU    string
	DisplayName    string
	Description    sql.NullString
	BaseUoM        string
	UoMConversion  json.RawMessage // target uom -> factor to base
	Active         bool
	Attributes     json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CustomerPrice — tiered price (C9, C10).
type CustomerPrice struct {
	ID             string
	TenantID       string
	CustomerID     string
	InternalSKU    string
	Currency       string
	UoM            string
	UnitPrice      decimal.Decimal
	MinQty         decimal.Decimal
	ValidFrom      time.Time
	ValidTo        sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SkuMapping — learned association (C9, C13).
type SkuMapping struct {
	ID                 string
	TenantID           string
	CustomerID         string
	NormalizedSKU      string
	InternalSKU        string
	CustomerUoM        sql.NullString
	InternalUoM        sql.NullString
	PackFactor         sql.NullFloat64
	Status             string // SUGGESTED | CONFIRMED | REJECTED | DEPRECATED
	Confidence         float64
	SupportCount       int
	RejectCount        int
	LastUsedAt         sql.NullTime
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Customer — tenant's customer (C8).
type Customer struct {
	ID               string
	TenantID         string
	Name             string
	ERPCustomerNumber sql.NullString
	DefaultCurrency  string
	DefaultLanguage  sql.NullString
	AddressesJSON    json.RawMessage
	MetadataJSON     json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CustomerContact — child of Customer (C8).
type CustomerContact struct {
	ID         string
	TenantID   string
	CustomerID string
	Email      string // case-insensitive unique per customer
	Name       sql.NullString
	IsPrimary  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidationIssue — a finding attached to a DraftOrder or a line (C10).
type ValidationIssue struct {
	ID           string
	TenantID     string
	DraftOrderID string
	LineID       sql.NullString
	Type         string
	Severity     string // INFO | WARNING | ERROR
	Status       string // OPEN | ACKNOWLEDGED | RESOLVED | OVERRIDDEN
	Message      string
	DetailsJSON  json.RawMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CustomerDetectionCandidate — a scored (draft, customer) pair (C8).
type CustomerDetectionCandidate struct {
	ID           string
	TenantID     string
	DraftOrderID string
	CustomerID   string
	Score        float64
	SignalsJSON  json.RawMessage
	Status       string // CANDIDATE | SELECTED | REJECTED
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AICallLog — append-only record of one provider invocation (C7).
type AICallLog struct {
	ID           string
	TenantID     string
	CallType     string
	InputHash    string
	Provider     string
	Model        string
	PromptTokens int
	OutputTokens int
	LatencyMS    int
	CostMicros   int64
	Outcome      string // SUCCEEDED | FAILED
	PromptStored sql.NullString // only when tenant opts in
	CreatedAt    time.Time
}

// ProductEmbedding — one vector per (tenant, product, model) (C9).
type ProductEmbedding struct {
	ID           string
	TenantID     string
	ProductID    string
	Model        string
	TextHash     string
	Vector       []float32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FeedbackEvent — append-only operator-correction record (C13).
type FeedbackEvent struct {
	ID                string
	TenantID          string
	DraftOrderID      sql.NullString
	Kind              string // MAPPING_CONFIRM | MAPPING_REJECT | FIELD_EDIT | CUSTOMER_SELECT | ISSUE_OVERRIDE
	BeforeJSON        json.RawMessage
	AfterJSON         json.RawMessage
	LayoutFingerprint sql.NullString
	ActorID           string
	CreatedAt         time.Time
}

// AuditLog — append-only actor-attributed action record.
type AuditLog struct {
	ID          string
	TenantID    string
	ActorID     string
	Action      string
	EntityType  string
	EntityID    string
	BeforeJSON  json.RawMessage
	AfterJSON   json.RawMessage
	IPAddress   sql.NullString
	UserAgent   sql.NullString
	CreatedAt   time.Time
}

// TenantUoMSynonym — tenant configuration resolving a free-text UoM token to
// the canonical set (DESIGN.md Open Question #2).
type TenantUoMSynonym struct {
	ID           string
	TenantID     string
	Synonym      string
	CanonicalUoM string
}

// DraftOrderExport — a generated export record (C12), keyed so a repeated
// push with the same idempotency key returns the same row instead of
// re-writing the dropzone file (spec.md §4.12, §5 idempotence invariant iv).
type DraftOrderExport struct {
	ID             string
	TenantID       string
	DraftOrderID   string
	IdempotencyKey sql.NullString
	ExportFilename string
	ExportJSON     json.RawMessage
	DropzonePath   string
	CreatedAt      time.Time
}
