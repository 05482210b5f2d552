// Package intake implements C3: the SMTP and HTTP upload producers that
// turn raw bytes into an InboundMessage, plus the attachment-extraction job
// that explodes a message into Document rows.
package intake

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/dedup"
	"github.com/orderflow/orderflow/internal/providers"
	"github.com/orderflow/orderflow/internal/queue"
)

const (
	SourceEmail  = "EMAIL"
	SourceUpload = "UPLOAD"
)

// acceptedUploadTypes is the upload accept-list of spec.md §4.3: PDF/CSV/XLSX
// only, sniffed from content rather than trusted from the client-declared
// Content-Type.
var acceptedUploadTypes = map[string]bool{
	"application/pdf": true,
	"text/csv":        true,
	"text/plain":      true, // some CSV exports sniff as text/plain; the extractor router re-checks by extension
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"application/zip": true, // xlsx is a zip container; mimetype only detects the office subtype with its full magic table
}

// Store is the subset of *db.Queries the intake pipeline needs.
type Store interface {
	FindTenantBySlug(ctx context.Context, slug string) (*db.Tenant, error)
	CreateInboundMessage(ctx context.Context, m db.InboundMessage) (*db.InboundMessage, error)
	UpdateInboundMessageStatus(ctx context.Context, tenantID, id, status string) error
	GetInboundMessage(ctx context.Context, tenantID, id string) (*db.InboundMessage, error)
	CreateDocument(ctx context.Context, d db.Document) (*db.Document, error)
}

// Publisher is the subset of *queue.Manager the pipeline needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Pipeline is shared by the SMTP listener and the HTTP upload handler; both
// producers funnel into the same dedup/store/enqueue path.
type Pipeline struct {
	store       Store
	dedup       *dedup.Checker
	objectStore providers.ObjectStorePort
	publisher   Publisher
	now         func() time.Time
}

func New(store Store, dedupChecker *dedup.Checker, objectStore providers.ObjectStorePort, publisher Publisher) *Pipeline {
	return &Pipeline{store: store, dedup: dedupChecker, objectStore: objectStore, publisher: publisher, now: time.Now}
}

// AcceptResult is the outcome of one acceptance attempt, shared by both
// producers; the SMTP listener maps it to a response code, the upload
// handler maps it to an HTTP status.
type AcceptResult struct {
	Accepted         bool
	Duplicate        bool
	TenantUnknown    bool
	TooLarge         bool
	InboundMessageID string
}

// AcceptEmail implements the SMTP acceptance contract of spec.md §4.3:
// unknown tenant slug, oversized message, and dedup are checked before any
// row is written; success persists the raw MIME bytes, writes the
// InboundMessage row, and enqueues the attachment-extraction job.
func (p *Pipeline) AcceptEmail(ctx context.Context, tenantSlug string, raw []byte, maxBytes int64) (AcceptResult, error) {
	if int64(len(raw)) > maxBytes {
		return AcceptResult{TooLarge: true}, nil
	}
	tenant, err := p.store.FindTenantBySlug(ctx, tenantSlug)
	if err != nil {
		return AcceptResult{TenantUnknown: true}, nil
	}

	parsed, err := WalkMIME(raw)
	if err != nil {
		return AcceptResult{}, err
	}

	dedupResult, err := p.dedup.CheckInbound(ctx, tenant.ID, SourceEmail, parsed.MessageID)
	if err != nil {
		return AcceptResult{}, err
	}
	if dedupResult.IsDup {
		return AcceptResult{Accepted: true, Duplicate: true, InboundMessageID: dedupResult.Existing.ID}, nil
	}

	storageKey := fmt.Sprintf("inbound/%s/%s.eml", tenant.ID, sanitizeKeyPart(parsed.MessageID))
	if err := p.objectStore.Put(ctx, storageKey, raw); err != nil {
		return AcceptResult{}, err
	}

	msg, err := p.store.CreateInboundMessage(ctx, db.InboundMessage{
		TenantID:          tenant.ID,
		Source:            SourceEmail,
		ProviderMessageID: nullable(parsed.MessageID),
		SenderAddress:     nullable(parsed.FromAddress),
		ReceivedAt:        p.now(),
		RawStorageKey:     storageKey,
		Status:            "STORED",
	})
	if err != nil {
		return AcceptResult{}, err
	}

	if err := p.enqueueExtraction(tenant.ID, msg.ID); err != nil {
		return AcceptResult{}, err
	}
	return AcceptResult{Accepted: true, InboundMessageID: msg.ID}, nil
}

// AcceptUpload implements the upload acceptance contract: accept-list
// sniffed from content, size cap identical to SMTP, same dedup path. Unlike
// email, an upload arrives as exactly one already-identified attachment, so
// the Document is created inline here rather than through the MIME-explode
// job — there is nothing left to walk. The caller-supplied idempotencyKey
// stands in for Message-ID since an upload has no natural one.
func (p *Pipeline) AcceptUpload(ctx context.Context, tenantSlug, filename, idempotencyKey string, data []byte, maxBytes int64) (AcceptResult, error) {
	if int64(len(data)) > maxBytes {
		return AcceptResult{TooLarge: true}, nil
	}
	tenant, err := p.store.FindTenantBySlug(ctx, tenantSlug)
	if err != nil {
		return AcceptResult{TenantUnknown: true}, nil
	}

	sniffed := mimetype.Detect(data)
	if !isAcceptedUpload(sniffed.String(), filename) {
		return AcceptResult{}, fmt.Errorf("unsupported upload media type %q for %q", sniffed.String(), filename)
	}

	dedupResult, err := p.dedup.CheckInbound(ctx, tenant.ID, SourceUpload, idempotencyKey)
	if err != nil {
		return AcceptResult{}, err
	}
	if dedupResult.IsDup {
		return AcceptResult{Accepted: true, Duplicate: true, InboundMessageID: dedupResult.Existing.ID}, nil
	}

	storageKey := fmt.Sprintf("inbound/%s/%s", tenant.ID, sanitizeKeyPart(idempotencyKey+"-"+filename))
	if err := p.objectStore.Put(ctx, storageKey, data); err != nil {
		return AcceptResult{}, err
	}

	msg, err := p.store.CreateInboundMessage(ctx, db.InboundMessage{
		TenantID:          tenant.ID,
		Source:            SourceUpload,
		ProviderMessageID: nullable(idempotencyKey),
		ReceivedAt:        p.now(),
		RawStorageKey:     storageKey,
		Status:            "STORED",
	})
	if err != nil {
		return AcceptResult{}, err
	}

	doc, err := p.storeAttachment(ctx, tenant.ID, msg.ID, Attachment{Filename: filename, MediaType: sniffed.String(), Data: data})
	if err != nil {
		_ = p.store.UpdateInboundMessageStatus(ctx, tenant.ID, msg.ID, "FAILED")
		return AcceptResult{}, err
	}
	if err := p.store.UpdateInboundMessageStatus(ctx, tenant.ID, msg.ID, "PARSED"); err != nil {
		return AcceptResult{}, err
	}
	if err := p.enqueueDocumentExtraction(tenant.ID, doc.ID); err != nil {
		return AcceptResult{}, err
	}
	return AcceptResult{Accepted: true, InboundMessageID: msg.ID}, nil
}

func (p *Pipeline) enqueueExtraction(tenantID, inboundMessageID string) error {
	payload, err := json.Marshal(queue.IntakeEnqueueMsg{TenantID: tenantID, InboundMessageID: inboundMessageID})
	if err != nil {
		return err
	}
	return p.publisher.Publish(queue.SubjectIntakeEnqueue, payload)
}

func (p *Pipeline) enqueueDocumentExtraction(tenantID, documentID string) error {
	payload, err := json.Marshal(queue.ExtractionDispatchMsg{TenantID: tenantID, DocumentID: documentID})
	if err != nil {
		return err
	}
	return p.publisher.Publish(queue.SubjectExtractionDispatch, payload)
}

// storeAttachment implements the per-attachment half of spec.md §4.3's
// "the job stores each attachment as a Document": document dedup, content
// storage, and the Document row, tenant-scoped.
func (p *Pipeline) storeAttachment(ctx context.Context, tenantID, inboundMessageID string, att Attachment) (*db.Document, error) {
	sum := sha256.Sum256(att.Data)
	sha256Hex := hex.EncodeToString(sum[:])

	docDedup, err := p.dedup.CheckDocument(ctx, tenantID, sha256Hex, att.Filename, int64(len(att.Data)))
	if err != nil {
		return nil, err
	}
	if docDedup.IsDup {
		return docDedup.Existing, nil
	}

	storageKey := fmt.Sprintf("documents/%s/%s-%s", tenantID, sha256Hex, sanitizeKeyPart(att.Filename))
	if err := p.objectStore.Put(ctx, storageKey, att.Data); err != nil {
		return nil, err
	}

	return p.store.CreateDocument(ctx, db.Document{
		TenantID:         tenantID,
		InboundMessageID: nullable(inboundMessageID),
		Filename:         att.Filename,
		MediaType:        att.MediaType,
		SizeBytes:        int64(len(att.Data)),
		SHA256Hex:        sha256Hex,
		RawStorageKey:    storageKey,
		Status:           "STORED",
	})
}

func isAcceptedUpload(mediaType, filename string) bool {
	lowerName := strings.ToLower(filename)
	if mediaType == "application/zip" {
		return strings.HasSuffix(lowerName, ".xlsx")
	}
	if acceptedUploadTypes[mediaType] {
		return true
	}
	// mimetype's magic-byte table does not distinguish a bare zip from an
	// xlsx zip container without the full OOXML rule set; fall back to the
	// extension for that one ambiguous case.
	return strings.HasSuffix(lowerName, ".xlsx") && mediaType == "application/zip"
}

func sanitizeKeyPart(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "unnamed"
	}
	return s
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
