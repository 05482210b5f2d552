package customerdetect

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/orderflow/orderflow/internal/db"
)

const (
	defaultAutoSelectThreshold = 0.90
	defaultAutoSelectGap       = 0.07
	maxCandidates              = 5
)

// Store is the subset of *db.Queries the detector needs.
type Store interface {
	ListCustomers(ctx context.Context, tenantID string) ([]db.Customer, error)
	ListCustomerContacts(ctx context.Context, tenantID string) ([]db.CustomerContact, error)
	FindCustomerByExactEmail(ctx context.Context, tenantID, email string) (*db.CustomerContact, error)
	FindCustomerByERPNumber(ctx context.Context, tenantID, erpNumber string) (*db.Customer, error)
}

// Hint is an LLM-provided customer hint (S6), scored as its S1/S4/S5 analog
// depending on which field is populated.
type Hint struct {
	ExactEmail string
	ERPNumber  string
	CompanyName string
}

// Input bundles everything the detector needs for one draft.
type Input struct {
	SenderEmail  string
	DocumentText string
	LLMHint      *Hint
}

// Signal is one scored observation attributed to a customer, kept for the
// SignalsJSON debug trail on CustomerDetectionCandidate.
type Signal struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Candidate is one customer's aggregated score plus its signal trail.
type Candidate struct {
	CustomerID string
	Score      float64
	Signals    []Signal
}

// Result is the outcome of Detect: either an auto-selected customer, or an
// ambiguous outcome with the top candidates preserved for operator review.
type Result struct {
	AutoSelected *Candidate
	Candidates   []Candidate // top-5, always populated when non-empty
	Ambiguous    bool
}

type Detector struct {
	store     Store
	threshold float64
	gap       float64
}

func New(store Store) *Detector {
	return &Detector{store: store, threshold: defaultAutoSelectThreshold, gap: defaultAutoSelectGap}
}

// Detect runs S1, S2, S4, S5, S6 against the tenant's customer roster and
// applies the auto-select decision gate.
func (d *Detector) Detect(ctx context.Context, tenantID string, in Input) (Result, error) {
	scores := map[string][]Signal{}
	add := func(customerID string, sig Signal) {
		scores[customerID] = append(scores[customerID], sig)
	}

	// S1: exact sender email match.
	if in.SenderEmail != "" {
		if contact, err := d.store.FindCustomerByExactEmail(ctx, tenantID, in.SenderEmail); err == nil {
			add(contact.CustomerID, Signal{ID: "S1", Score: ScoreS1})
		}
	}

	// S2: sender domain match across any contact, generic domains excluded.
	if in.SenderEmail != "" {
		domain := SenderDomain(in.SenderEmail)
		if domain != "" && !IsGenericDomain(domain) {
			contacts, err := d.store.ListCustomerContacts(ctx, tenantID)
			if err == nil {
				seen := map[string]bool{}
				for _, c := range contacts {
					if SenderDomain(c.Email) == domain && !seen[c.CustomerID] {
						seen[c.CustomerID] = true
						add(c.CustomerID, Signal{ID: "S2", Score: ScoreS2})
					}
				}
			}
		}
	}

	// S4: ERP customer-number regex match in document body.
	if in.DocumentText != "" {
		if num := ExtractERPNumber(in.DocumentText); num != "" {
			if cust, err := d.store.FindCustomerByERPNumber(ctx, tenantID, num); err == nil {
				add(cust.ID, Signal{ID: "S4", Score: ScoreS4})
			}
		}
	}

	// S5: fuzzy company-name match against every known customer name.
	if in.DocumentText != "" {
		if candidate := ExtractCompanyNameCandidate(in.DocumentText); candidate != "" {
			customers, err := d.store.ListCustomers(ctx, tenantID)
			if err == nil {
				for _, c := range customers {
					sim := NameSimilarity(candidate, c.Name)
					if score, ok := S5Score(sim); ok {
						add(c.ID, Signal{ID: "S5", Score: score})
					}
				}
			}
		}
	}

	// S6: LLM hint fields scored as their S1/S4/S5 analogs.
	if in.LLMHint != nil {
		d.scoreHint(ctx, tenantID, *in.LLMHint, add)
	}

	return d.aggregate(scores), nil
}

func (d *Detector) scoreHint(ctx context.Context, tenantID string, hint Hint, add func(string, Signal)) {
	if hint.ExactEmail != "" {
		if contact, err := d.store.FindCustomerByExactEmail(ctx, tenantID, hint.ExactEmail); err == nil {
			add(contact.CustomerID, Signal{ID: "S6", Score: ScoreS1})
		}
	}
	if hint.ERPNumber != "" {
		if cust, err := d.store.FindCustomerByERPNumber(ctx, tenantID, hint.ERPNumber); err == nil {
			add(cust.ID, Signal{ID: "S6", Score: ScoreS4})
		}
	}
	if hint.CompanyName != "" {
		customers, err := d.store.ListCustomers(ctx, tenantID)
		if err == nil {
			for _, c := range customers {
				sim := NameSimilarity(hint.CompanyName, c.Name)
				if score, ok := S5Score(sim); ok {
					add(c.ID, Signal{ID: "S6", Score: score})
				}
			}
		}
	}
}

// aggregate computes `score = 1 - prod(1 - score_i)` per customer, clamped
// to 0.999, sorts descending, keeps the top 5, and applies the auto-select
// gate (spec.md §4.8).
func (d *Detector) aggregate(scores map[string][]Signal) Result {
	var candidates []Candidate
	for customerID, sigs := range scores {
		product := 1.0
		for _, s := range sigs {
			product *= 1 - s.Score
		}
		agg := 1 - product
		if agg > 0.999 {
			agg = 0.999
		}
		candidates = append(candidates, Candidate{CustomerID: customerID, Score: agg, Signals: sigs})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	res := Result{Candidates: candidates}
	if len(candidates) == 0 {
		res.Ambiguous = true
		return res
	}
	if len(candidates) == 1 {
		if candidates[0].Score >= d.threshold {
			sel := candidates[0]
			res.AutoSelected = &sel
			return res
		}
		res.Ambiguous = true
		return res
	}

	top1, top2 := candidates[0].Score, candidates[1].Score
	if top1 >= d.threshold && (top1-top2) >= d.gap {
		sel := candidates[0]
		res.AutoSelected = &sel
		return res
	}
	res.Ambiguous = true
	return res
}

// ManualConfidence implements "manual selection sets customer_confidence =
// max(candidate_score, 0.90)" (spec.md §4.8).
func ManualConfidence(candidateScore float64) float64 {
	if candidateScore > 0.90 {
		return candidateScore
	}
	return 0.90
}

// MarshalSignals is a small helper for persisting SignalsJSON on a
// CustomerDetectionCandidate row.
func MarshalSignals(sigs []Signal) ([]byte, error) {
	return json.Marshal(sigs)
}
