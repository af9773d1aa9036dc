package models

import (
	"time"

	"github.com/google/uuid"
)

// Report section names. Sections are built in this declared order.
const (
	SectionPropertyDetails  = "property_details"
	SectionBrokerInfo       = "broker_info"
	SectionFinancialSummary = "financial_summary"
	SectionDebtFinancing    = "debt_financing"
	SectionComparables      = "comparables"
	SectionReportSummaries  = "report_summaries"
	SectionModelingData     = "modeling_data"
	SectionProsAndCons      = "pros_and_cons"
)

// SectionNames lists every report section in build order.
var SectionNames = []string{
	SectionPropertyDetails,
	SectionBrokerInfo,
	SectionFinancialSummary,
	SectionDebtFinancing,
	SectionComparables,
	SectionReportSummaries,
	SectionModelingData,
	SectionProsAndCons,
}

// Report is the composite structured output of a full report build. Each
// section value is the parsed structured data (object or array), or
// {"raw_text": ...} when structuring failed and the section degraded to the
// synthesizer's raw output. Sections whose extraction yielded nothing are
// absent from the map.
type Report struct {
	DocumentID  uuid.UUID      `json:"document_id"`
	Sections    map[string]any `json:"sections"`
	GeneratedAt time.Time      `json:"generated_at"`
}
