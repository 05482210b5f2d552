// Package push implements C12: approve, push, idempotent export
// generation, atomic dropzone delivery, and the optional ack-poll worker.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orderflow/orderflow/internal/db"
)

// ExportVersion is the stable format identifier stored on every export
// (spec.md §6.2).
const ExportVersion = "orderflow_export_json_v1"

// ExportRecord mirrors the canonical export shape of spec.md §6.2.
type ExportRecord struct {
	ExportVersion string         `json:"export_version"`
	TenantSlug    string         `json:"tenant_slug"`
	DraftOrderID  string         `json:"draft_order_id"`
	ApprovedAt    *string        `json:"approved_at"`
	Customer      ExportCustomer `json:"customer"`
	Header        ExportHeader   `json:"header"`
	Lines         []ExportLine   `json:"lines"`
	Meta          ExportMeta     `json:"meta"`
}

type ExportCustomer struct {
	ID                string  `json:"id"`
	ERPCustomerNumber *string `json:"erp_customer_number"`
	Name              string  `json:"name"`
}

type ExportHeader struct {
	ExternalOrderNumber  *string `json:"external_order_number"`
	OrderDate            *string `json:"order_date"`
	Currency             string  `json:"currency"`
	RequestedDeliveryDate *string `json:"requested_delivery_date"`
	Notes                *string `json:"notes"`
}

type ExportLine struct {
	LineNo         int      `json:"line_no"`
	InternalSKU    *string  `json:"internal_sku"`
	Qty            *float64 `json:"qty"`
	UoM            *string  `json:"uom"`
	UnitPrice      *float64 `json:"unit_price"`
	Currency       *string  `json:"currency"`
	CustomerSKURaw string   `json:"customer_sku_raw"`
	Description    *string  `json:"description"`
}

type ExportMeta struct {
	CreatedBy      string               `json:"created_by"`
	SourceDocument ExportSourceDocument `json:"source_document"`
}

type ExportSourceDocument struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	SHA256     string `json:"sha256"`
}

// BuildExportRecord assembles the canonical export record from the
// aggregate. approvedBy is stamped into meta.created_by, matching "approver"
// from the Approve step rather than the pusher, since push can be retried by
// a different actor than the one who approved.
func BuildExportRecord(tenantSlug string, draft db.DraftOrder, lines []db.DraftOrderLine, customer db.Customer, document db.Document) ExportRecord {
	rec := ExportRecord{
		ExportVersion: ExportVersion,
		TenantSlug:    tenantSlug,
		DraftOrderID:  draft.ID,
		Customer: ExportCustomer{
			ID:   customer.ID,
			Name: customer.Name,
		},
		Header: ExportHeader{
			Currency: draft.Currency.String,
		},
		Meta: ExportMeta{
			CreatedBy: draft.ApprovedBy.String,
			SourceDocument: ExportSourceDocument{
				DocumentID: document.ID,
				FileName:   document.Filename,
				SHA256:     document.SHA256Hex,
			},
		},
	}
	if customer.ERPCustomerNumber.Valid {
		v := customer.ERPCustomerNumber.String
		rec.Customer.ERPCustomerNumber = &v
	}
	if draft.ApprovedAt.Valid {
		s := draft.ApprovedAt.Time.UTC().Format("2006-01-02T15:04:05Z")
		rec.ApprovedAt = &s
	}
	if draft.ExternalOrderNumber.Valid {
		v := draft.ExternalOrderNumber.String
		rec.Header.ExternalOrderNumber = &v
	}
	if draft.OrderDate.Valid {
		s := draft.OrderDate.Time.Format("2006-01-02")
		rec.Header.OrderDate = &s
	}
	if draft.DeliveryDate.Valid {
		s := draft.DeliveryDate.Time.Format("2006-01-02")
		rec.Header.RequestedDeliveryDate = &s
	}
	if draft.Notes.Valid {
		v := draft.Notes.String
		rec.Header.Notes = &v
	}

	for _, l := range lines {
		el := ExportLine{LineNo: l.LineNo, CustomerSKURaw: l.CustomerSKURaw}
		if l.InternalSKU.Valid {
			v := l.InternalSKU.String
			el.InternalSKU = &v
		}
		if l.Qty.Valid {
			v, _ := l.Qty.Decimal.Float64()
			el.Qty = &v
		}
		if l.UoM.Valid {
			v := l.UoM.String
			el.UoM = &v
		}
		if l.UnitPrice.Valid {
			v, _ := l.UnitPrice.Decimal.Float64()
			el.UnitPrice = &v
		}
		if l.Currency.Valid {
			v := l.Currency.String
			el.Currency = &v
		}
		if l.ProductDescription.Valid {
			v := l.ProductDescription.String
			el.Description = &v
		}
		rec.Lines = append(rec.Lines, el)
	}
	return rec
}

// ExportFilename implements the naming rule of spec.md §6.2:
// sales_order_<draft_id>_<YYYYMMDDTHHMMSSZ>.json.
func ExportFilename(draftID string, timestampUTC string) string {
	return fmt.Sprintf("sales_order_%s_%s.json", draftID, timestampUTC)
}

// MarshalExport renders the record as indented JSON, matching the teacher's
// export-writer style of human-inspectable dropzone artifacts.
func MarshalExport(rec ExportRecord) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}
