package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deallens-backend/llm"
	"deallens-backend/models"

	"github.com/google/uuid"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrReportNotFound   = errors.New("report not found")
)

// Retriever runs one retrieval pass for a query, optionally scoped to a
// document.
type Retriever interface {
	Retrieve(ctx context.Context, query string, documentID *uuid.UUID) (*models.RetrievalResult, error)
}

// Synthesizer turns retrieved context into an answer, optionally constrained
// by a schema.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, retrieved *models.RetrievalResult, schema *llm.Schema) (string, error)
}

// DocumentFinder looks up uploaded document records.
type DocumentFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
}

// SectionSpec binds a report section name to its extraction query and its
// structured-output schema.
type SectionSpec struct {
	Name   string
	Query  string
	Schema *llm.Schema
}

func stringProp(desc string) llm.Property {
	return llm.Property{Type: "string", Description: desc}
}

// reportSections is the fixed battery of section extractions, in build
// order.
var reportSections = []SectionSpec{
	{
		Name:  models.SectionPropertyDetails,
		Query: "Extract all property details (address, property_name, lot size, year built, rsf, unit_count, etc.) in JSON format.",
		Schema: &llm.Schema{
			Description: "physical and identifying details of the property",
			Properties: map[string]llm.Property{
				"address":       stringProp("street address of the property"),
				"property_name": stringProp("marketed name of the property"),
				"lot_size":      stringProp("lot size with units"),
				"year_built":    stringProp("year the property was built"),
				"rsf":           stringProp("rentable square footage"),
				"unit_count":    llm.Property{Type: "number", Description: "number of units"},
				"property_type": stringProp("asset class, e.g. multifamily, office"),
			},
		},
	},
	{
		Name:  models.SectionBrokerInfo,
		Query: "Extract broker contact info, brokerage, and investment strategy in JSON format.",
		Schema: &llm.Schema{
			Description: "listing broker contacts and strategy",
			Properties: map[string]llm.Property{
				"broker_name":         stringProp("primary broker full name"),
				"phone":               stringProp("broker phone number"),
				"email":               stringProp("broker email address"),
				"brokerage":           stringProp("brokerage firm"),
				"investment_strategy": stringProp("stated investment strategy"),
			},
		},
	},
	{
		Name:  models.SectionFinancialSummary,
		Query: "Extract asking price, NOI, Opex, Cap Rate, IRR, rent, tax, assessed value, etc. in JSON format.",
		Schema: &llm.Schema{
			Description: "headline financial metrics",
			Properties: map[string]llm.Property{
				"asking_price":   stringProp("asking price"),
				"noi":            stringProp("net operating income"),
				"opex":           stringProp("operating expenses"),
				"cap_rate":       stringProp("capitalization rate"),
				"irr":            stringProp("projected internal rate of return"),
				"rent":           stringProp("current rent figures"),
				"tax":            stringProp("property tax"),
				"assessed_value": stringProp("assessed value"),
			},
		},
	},
	{
		Name:  models.SectionDebtFinancing,
		Query: "Extract financing info (loan amount, term, type, WALT, lease type) in JSON format.",
		Schema: &llm.Schema{
			Description: "debt and financing terms",
			Properties: map[string]llm.Property{
				"loan_amount": stringProp("loan amount"),
				"term":        stringProp("loan term"),
				"type":        stringProp("loan type"),
				"walt":        stringProp("weighted average lease term"),
				"lease_type":  stringProp("lease structure, e.g. NNN"),
			},
		},
	},
	{
		Name:  models.SectionComparables,
		Query: "Extract comparable properties with address, price, date sold, cap rate, occupancy, rsf, lot size, etc. in JSON array format.",
		Schema: &llm.Schema{
			Description: "comparable property sales",
			Properties: map[string]llm.Property{
				"comparables": llm.Property{
					Type:        "array",
					Description: "one entry per comparable property",
					Items:       &llm.Property{Type: "object"},
				},
			},
		},
	},
	{
		Name:  models.SectionReportSummaries,
		Query: "Extract text summaries (property_summary, financial_summary, rent_roll_overview, tenant_information, market_overview, comparables_summary, investment_highlights, value_add_opportunities, debt_financing_summary) in JSON format.",
		Schema: &llm.Schema{
			Description: "free-text narrative summaries",
			Properties: map[string]llm.Property{
				"property_summary":        stringProp(""),
				"financial_summary":       stringProp(""),
				"rent_roll_overview":      stringProp(""),
				"tenant_information":      stringProp(""),
				"market_overview":         stringProp(""),
				"comparables_summary":     stringProp(""),
				"investment_highlights":   stringProp(""),
				"value_add_opportunities": stringProp(""),
				"debt_financing_summary":  stringProp(""),
			},
		},
	},
	{
		Name:  models.SectionModelingData,
		Query: "Extract structured modeling data (gross_potential_rent, NOI, cap rate, opex breakdown, price per unit, price per sf, rent roll mix, occupancy history, market rent comps, value-add plan, underwriting model) in JSON format.",
		Schema: &llm.Schema{
			Description: "underwriting model inputs",
			Properties: map[string]llm.Property{
				"gross_potential_rent": stringProp(""),
				"noi":                  stringProp(""),
				"cap_rate":             stringProp(""),
				"opex_breakdown":       llm.Property{Type: "object", Description: "operating expense line items"},
				"price_per_unit":       stringProp(""),
				"price_per_sf":         stringProp(""),
				"rent_roll_mix":        llm.Property{Type: "object", Description: "unit mix with rents"},
				"occupancy_history":    llm.Property{Type: "array", Items: &llm.Property{Type: "object"}},
				"market_rent_comps":    llm.Property{Type: "array", Items: &llm.Property{Type: "object"}},
				"value_add_plan":       stringProp(""),
				"underwriting_model":   llm.Property{Type: "object"},
			},
		},
	},
	{
		Name:  models.SectionProsAndCons,
		Query: "List the strengths and weaknesses of this property as an investment (pros and cons) in JSON format.",
		Schema: &llm.Schema{
			Description: "investment pros and cons",
			Properties: map[string]llm.Property{
				"pros": llm.Property{Type: "array", Description: "strengths of the investment", Items: &llm.Property{Type: "string"}},
				"cons": llm.Property{Type: "array", Description: "weaknesses and risks", Items: &llm.Property{Type: "string"}},
			},
		},
	},
}

// ReportService drives the retrieval and synthesis pipeline across the fixed
// battery of report sections and caches finished reports on disk, one JSON
// document per report identifier.
type ReportService struct {
	retriever   Retriever
	synthesizer Synthesizer
	documents   DocumentFinder
	reportsDir  string
}

// ReportServiceOption is a functional option for ReportService
type ReportServiceOption func(*ReportService)

// ReportWithRetriever sets the retriever
func ReportWithRetriever(retriever Retriever) ReportServiceOption {
	return func(s *ReportService) {
		s.retriever = retriever
	}
}

// ReportWithSynthesizer sets the synthesizer
func ReportWithSynthesizer(synthesizer Synthesizer) ReportServiceOption {
	return func(s *ReportService) {
		s.synthesizer = synthesizer
	}
}

// ReportWithDocumentFinder sets the document lookup used to distinguish
// unknown identifiers from internal failures
func ReportWithDocumentFinder(documents DocumentFinder) ReportServiceOption {
	return func(s *ReportService) {
		s.documents = documents
	}
}

// ReportWithReportsDir sets the directory reports are cached in
func ReportWithReportsDir(dir string) ReportServiceOption {
	return func(s *ReportService) {
		s.reportsDir = dir
	}
}

// NewReportService creates a new report service
func NewReportService(opts ...ReportServiceOption) *ReportService {
	s := &ReportService{reportsDir: "./storage/reports"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetReport returns the cached report for a document if one exists, else
// builds, persists, and returns a fresh one. Unknown document identifiers
// yield ErrDocumentNotFound.
func (s *ReportService) GetReport(ctx context.Context, documentID uuid.UUID) (*models.Report, error) {
	if s.documents != nil {
		if _, err := s.documents.GetByID(ctx, documentID); err != nil {
			return nil, ErrDocumentNotFound
		}
	}

	if report, err := s.loadCached(documentID); err == nil {
		return report, nil
	}

	report, err := s.BuildReport(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if err := s.persist(report); err != nil {
		log.Printf("Warning: failed to cache report %s: %v", documentID, err)
	}

	return report, nil
}

// BuildReport runs every section extraction in declared order. Sections are
// independent: a failed retrieval or synthesis drops that section and the
// build continues. A report with zero sections is still a valid report.
func (s *ReportService) BuildReport(ctx context.Context, documentID uuid.UUID) (*models.Report, error) {
	if s.retriever == nil {
		return nil, errors.New("retriever not set")
	}
	if s.synthesizer == nil {
		return nil, errors.New("synthesizer not set")
	}

	sections := make(map[string]any)
	for _, spec := range reportSections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log.Printf("Extracting %s for document %s", spec.Name, documentID)

		retrieved, err := s.retriever.Retrieve(ctx, spec.Query, &documentID)
		if err != nil {
			log.Printf("Warning: retrieval for section %s failed: %v. Skipping section.", spec.Name, err)
			continue
		}

		raw, err := s.synthesizer.Synthesize(ctx, spec.Query, retrieved, spec.Schema)
		if err != nil {
			log.Printf("Warning: synthesis for section %s failed: %v. Skipping section.", spec.Name, err)
			continue
		}

		if data := normalizeSection(raw); data != nil {
			sections[spec.Name] = data
		}
	}

	return &models.Report{
		DocumentID:  documentID,
		Sections:    sections,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// LoadCached returns the persisted report for an identifier, or
// ErrReportNotFound.
func (s *ReportService) LoadCached(documentID uuid.UUID) (*models.Report, error) {
	return s.loadCached(documentID)
}

func (s *ReportService) loadCached(documentID uuid.UUID) (*models.Report, error) {
	data, err := os.ReadFile(s.reportPath(documentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to read cached report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode cached report: %w", err)
	}

	return &report, nil
}

func (s *ReportService) persist(report *models.Report) error {
	if err := os.MkdirAll(s.reportsDir, 0755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := os.WriteFile(s.reportPath(report.DocumentID), data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func (s *ReportService) reportPath(documentID uuid.UUID) string {
	return filepath.Join(s.reportsDir, documentID.String()+".json")
}

// normalizeSection turns a synthesizer answer into section data. Markdown
// fences are stripped, apologies are treated as no data, valid JSON is
// parsed, and anything else degrades to a raw-text wrapper rather than
// dropping the section. Empty results return nil so the section is omitted.
func normalizeSection(raw string) any {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil
	}
	if strings.Contains(strings.ToLower(cleaned), "i am sorry") {
		return nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return map[string]any{"raw_text": raw}
	}

	switch v := parsed.(type) {
	case map[string]any:
		if len(v) == 0 {
			return nil
		}
	case []any:
		if len(v) == 0 {
			return nil
		}
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
	case nil:
		return nil
	}

	return parsed
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
