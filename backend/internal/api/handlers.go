package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/orderflow/orderflow/internal/coreerr"
	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/queue"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFromErr maps a coreerr.Kind to the HTTP status an operator client
// should see; anything untagged is a 500.
func statusFromErr(err error) int {
	kind, ok := coreerr.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case coreerr.NotFound:
		return http.StatusNotFound
	case coreerr.InputRejected, coreerr.StateMachineViolation:
		return http.StatusBadRequest
	case coreerr.OptimisticConflict:
		return http.StatusConflict
	case coreerr.BudgetExceeded:
		return http.StatusTooManyRequests
	case coreerr.TenantUnknown:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeCoreErr(w http.ResponseWriter, err error) {
	writeError(w, statusFromErr(err), err.Error())
}

// draftOrderView bundles a DraftOrder with the child rows an operator needs
// to review and act on it in one round trip.
type draftOrderView struct {
	Order      *db.DraftOrder                    `json:"draft_order"`
	Lines      []db.DraftOrderLine                `json:"lines"`
	Issues     []db.ValidationIssue               `json:"issues"`
	Candidates []db.CustomerDetectionCandidate    `json:"customer_candidates"`
}

func (s *Server) loadDraftOrderView(r *http.Request, tenantID, draftID string) (*draftOrderView, error) {
	order, err := s.db.GetDraftOrder(r.Context(), tenantID, draftID)
	if err != nil {
		return nil, err
	}
	lines, err := s.db.ListDraftOrderLines(r.Context(), tenantID, draftID)
	if err != nil {
		return nil, err
	}
	issues, err := s.db.ListIssues(r.Context(), tenantID, draftID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.db.ListCustomerCandidates(r.Context(), tenantID, draftID)
	if err != nil {
		return nil, err
	}
	return &draftOrderView{Order: order, Lines: lines, Issues: issues, Candidates: candidates}, nil
}

// handleListDraftOrders lists a tenant's drafts, optionally filtered by the
// ?status= query param (one of the draftengine.Status* values).
func (s *Server) handleListDraftOrders(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFromRequest(r)
	var status sql.NullString
	if q := r.URL.Query().Get("status"); q != "" {
		status = sql.NullString{String: q, Valid: true}
	}
	orders, err := s.db.ListDraftOrders(r.Context(), tenantID, status)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleGetDraftOrder(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFromRequest(r)
	draftID := mux.Vars(r)["id"]
	view, err := s.loadDraftOrderView(r, tenantID, draftID)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleUpload implements the HTTP upload producer of spec.md §4.3: the
// body is the raw file content, the filename and an idempotency key are
// carried as query params since operator tooling rarely wants multipart
// plumbing for a single attachment.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	tenantSlug := mux.Vars(r)["tenantSlug"]
	filename := r.URL.Query().Get("filename")
	idempotencyKey := r.URL.Query().Get("idempotency_key")
	if filename == "" || idempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "filename and idempotency_key query params are required")
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, s.config.UploadMaxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload body")
		return
	}
	result, err := s.intake.AcceptUpload(r.Context(), tenantSlug, filename, idempotencyKey, data, s.config.UploadMaxBytes)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if result.TooLarge {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the configured size limit")
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleRetryExtraction implements the operator-triggered retry of spec.md
// §4.4: it re-dispatches extraction for the draft's source document with
// RetryManual set, bypassing the "already succeeded" skip.
func (s *Server) handleRetryExtraction(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFromRequest(r)
	draftID := mux.Vars(r)["id"]
	order, err := s.db.GetDraftOrder(r.Context(), tenantID, draftID)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	payload, err := json.Marshal(queue.ExtractionDispatchMsg{TenantID: tenantID, DocumentID: order.SourceDocumentID, RetryManual: true})
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	if err := s.nats.Publish(queue.SubjectExtractionDispatch, payload); err != nil {
		s.writeCoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry dispatched"})
}

type selectCustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

// handleSelectCustomer implements the operator override path for C8: the
// operator picks a candidate (or any customer) directly rather than waiting
// on auto-selection. The feedback recorder logs the before/after selection
// for the audit trail; the ready-check gate is re-run afterward since a
// customer selection can flip NEEDS_REVIEW to READY.
func (s *Server) handleSelectCustomer(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFromRequest(r)
	draftID := mux.Vars(r)["id"]
	actorID := actorFromRequest(r)

	var req selectCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}

	before, err := s.db.GetDraftOrder(r.Context(), tenantID, draftID)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	if err := s.db.SelectCustomerCandidate(r.Context(), tenantID, draftID, req.CustomerID); err != nil {
		s.writeCoreErr(w, err)
		return
	}
	if err := s.feedback.CustomerSelect(r.Context(), tenantID, draftID, actorID,
		map[string]string{"customer_id": before.CustomerID.String},
		map[string]string{"customer_id": req.CustomerID}); err != nil {
		s.writeCoreErr(w, err)
		return
	}
	updated, _, err := s.engine.RunReadyCheck(r.Context(), tenantID, draftID)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFromRequest(r)
	draftID := mux.Vars(r)["id"]
	updated, err := s.pusher.Approve(r.Context(), tenantID, draftID, actorFromRequest(r))
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type pushRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFromRequest(r)
	draftID := mux.Vars(r)["id"]
	var req pushRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	export, err := s.pusher.Push(r.Context(), tenantID, draftID, actorFromRequest(r), req.IdempotencyKey)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleAcknowledgeIssue(w http.ResponseWriter, r *http.Request) {
	s.setIssueStatus(w, r, "ACKNOWLEDGED")
}

func (s *Server) handleOverrideIssue(w http.ResponseWriter, r *http.Request) {
	s.setIssueStatus(w, r, "OVERRIDDEN")
}

func (s *Server) setIssueStatus(w http.ResponseWriter, r *http.Request, status string) {
	tenantID := tenantIDFromRequest(r)
	draftID := mux.Vars(r)["id"]
	issueID := mux.Vars(r)["issueId"]
	actorID := actorFromRequest(r)

	if err := s.db.SetIssueStatus(r.Context(), tenantID, issueID, status); err != nil {
		s.writeCoreErr(w, err)
		return
	}
	if err := s.feedback.IssueOverride(r.Context(), tenantID, draftID, actorID,
		map[string]string{"issue_id": issueID}, map[string]string{"issue_id": issueID, "status": status}); err != nil {
		s.writeCoreErr(w, err)
		return
	}
	updated, _, err := s.engine.RunReadyCheck(r.Context(), tenantID, draftID)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type confirmMappingRequest struct {
	InternalSKU       string `json:"internal_sku"`
	LayoutFingerprint string `json:"layout_fingerprint"`
}

// handleConfirmMapping implements C13's mapping-confirm path: the operator
// accepts (or corrects) the matcher's suggestion for one line, which both
// upserts a CONFIRMED sku_mappings row for future lines and stamps the
// line's own match fields so the current draft reflects the decision
// immediately rather than waiting on a re-run of the matcher.
func (s *Server) handleConfirmMapping(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFromRequest(r)
	draftID := mux.Vars(r)["id"]
	lineID := mux.Vars(r)["lineId"]
	actorID := actorFromRequest(r)

	var req confirmMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InternalSKU == "" {
		writeError(w, http.StatusBadRequest, "internal_sku is required")
		return
	}

	order, err := s.db.GetDraftOrder(r.Context(), tenantID, draftID)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	if !order.CustomerID.Valid {
		writeError(w, http.StatusBadRequest, "draft has no customer selected")
		return
	}
	lines, err := s.db.ListDraftOrderLines(r.Context(), tenantID, draftID)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	line, ok := findLine(lines, lineID)
	if !ok {
		writeError(w, http.StatusNotFound, "line not found")
		return
	}

	if err := s.feedback.MappingConfirm(r.Context(), tenantID, draftID, order.CustomerID.String,
		line.CustomerSKUNormalized, req.InternalSKU, req.LayoutFingerprint, actorID,
		map[string]string{"internal_sku": line.InternalSKU.String, "match_status": line.MatchStatus}); err != nil {
		s.writeCoreErr(w, err)
		return
	}
	if err := s.db.UpdateDraftOrderLineMatch(r.Context(), tenantID, lineID, req.InternalSKU, "MATCHED", "operator_confirm", 1.0, nil); err != nil {
		s.writeCoreErr(w, err)
		return
	}
	updated, _, err := s.engine.RunReadyCheck(r.Context(), tenantID, draftID)
	if err != nil {
		s.writeCoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type rejectMappingRequest struct {
	MappingID         string `json:"mapping_id"`
	LayoutFingerprint string `json:"layout_fingerprint"`
}

func (s *Server) handleRejectMapping(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantIDFromRequest(r)
	draftID := mux.Vars(r)["id"]
	lineID := mux.Vars(r)["lineId"]
	actorID := actorFromRequest(r)

	var req rejectMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MappingID == "" {
		writeError(w, http.StatusBadRequest, "mapping_id is required")
		return
	}

	if err := s.feedback.MappingReject(r.Context(), tenantID, draftID, req.MappingID, req.LayoutFingerprint, actorID,
		map[string]string{"mapping_id": req.MappingID}); err != nil {
		s.writeCoreErr(w, err)
		return
	}
	if err := s.db.UpdateDraftOrderLineMatch(r.Context(), tenantID, lineID, "", "UNMATCHED", "", 0, nil); err != nil {
		s.writeCoreErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func findLine(lines []db.DraftOrderLine, id string) (db.DraftOrderLine, bool) {
	for _, l := range lines {
		if l.ID == id {
			return l, true
		}
	}
	return db.DraftOrderLine{}, false
}
