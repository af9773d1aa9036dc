package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"deallens-backend/llm"
	"deallens-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReportCoversDeclaredSections(t *testing.T) {
	synth := &fakeSynthesizer{
		fn: func(query string, _ *models.RetrievalResult, _ *llm.Schema) (string, error) {
			return `{"filled": "yes"}`, nil
		},
	}
	svc := NewReportService(
		ReportWithRetriever(&fakeRetriever{}),
		ReportWithSynthesizer(synth),
		ReportWithReportsDir(t.TempDir()),
	)

	report, err := svc.BuildReport(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, report.Sections, len(models.SectionNames))
	for _, name := range models.SectionNames {
		assert.Contains(t, report.Sections, name)
	}
}

func TestBuildReportFailedSectionIsOmitted(t *testing.T) {
	synth := &fakeSynthesizer{
		fn: func(query string, _ *models.RetrievalResult, _ *llm.Schema) (string, error) {
			if strings.Contains(query, "broker") {
				return "", errors.New("model unavailable")
			}
			return `{"ok": true}`, nil
		},
	}
	svc := NewReportService(
		ReportWithRetriever(&fakeRetriever{}),
		ReportWithSynthesizer(synth),
		ReportWithReportsDir(t.TempDir()),
	)

	report, err := svc.BuildReport(context.Background(), uuid.New())
	require.NoError(t, err, "one failed section does not fail the report")
	assert.NotContains(t, report.Sections, models.SectionBrokerInfo)
	assert.Contains(t, report.Sections, models.SectionPropertyDetails)
	assert.Len(t, report.Sections, len(models.SectionNames)-1)
}

func TestBuildReportFailedRetrievalIsOmitted(t *testing.T) {
	retriever := &fakeRetriever{
		fn: func(query string) (*models.RetrievalResult, error) {
			if strings.Contains(query, "financing") {
				return nil, errors.New("index down")
			}
			return &models.RetrievalResult{Texts: []string{"ctx"}}, nil
		},
	}
	svc := NewReportService(
		ReportWithRetriever(retriever),
		ReportWithSynthesizer(&fakeSynthesizer{}),
		ReportWithReportsDir(t.TempDir()),
	)

	report, err := svc.BuildReport(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotContains(t, report.Sections, models.SectionDebtFinancing)
}

func TestBuildReportEmptyAnswersYieldEmptyReport(t *testing.T) {
	synth := &fakeSynthesizer{
		fn: func(string, *models.RetrievalResult, *llm.Schema) (string, error) {
			return "{}", nil
		},
	}
	svc := NewReportService(
		ReportWithRetriever(&fakeRetriever{}),
		ReportWithSynthesizer(synth),
		ReportWithReportsDir(t.TempDir()),
	)

	report, err := svc.BuildReport(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, report.Sections)
}

func TestGetReportCachesOnDisk(t *testing.T) {
	docID := uuid.New()
	calls := 0
	synth := &fakeSynthesizer{
		fn: func(string, *models.RetrievalResult, *llm.Schema) (string, error) {
			calls++
			return `{"v": 1}`, nil
		},
	}
	svc := NewReportService(
		ReportWithRetriever(&fakeRetriever{}),
		ReportWithSynthesizer(synth),
		ReportWithDocumentFinder(&fakeDocs{known: map[uuid.UUID]bool{docID: true}}),
		ReportWithReportsDir(t.TempDir()),
	)

	first, err := svc.GetReport(context.Background(), docID)
	require.NoError(t, err)
	built := calls

	second, err := svc.GetReport(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, built, calls, "second call serves the cached report")
	assert.Equal(t, first.Sections, second.Sections)
	assert.Equal(t, docID, second.DocumentID)
}

func TestGetReportUnknownDocument(t *testing.T) {
	svc := NewReportService(
		ReportWithRetriever(&fakeRetriever{}),
		ReportWithSynthesizer(&fakeSynthesizer{}),
		ReportWithDocumentFinder(&fakeDocs{known: map[uuid.UUID]bool{}}),
		ReportWithReportsDir(t.TempDir()),
	)

	_, err := svc.GetReport(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestNormalizeSection(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{
			name: "plain json object",
			raw:  `{"a": "b"}`,
			want: map[string]any{"a": "b"},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"a\": \"b\"}\n```",
			want: map[string]any{"a": "b"},
		},
		{
			name: "bare fence",
			raw:  "```\n[1, 2]\n```",
			want: []any{float64(1), float64(2)},
		},
		{
			name: "invalid json degrades to raw text",
			raw:  "The cap rate is 5.2%",
			want: map[string]any{"raw_text": "The cap rate is 5.2%"},
		},
		{
			name: "apology yields nothing",
			raw:  "I am sorry, I cannot find that information.",
			want: nil,
		},
		{
			name: "empty object yields nothing",
			raw:  `{}`,
			want: nil,
		},
		{
			name: "empty array yields nothing",
			raw:  `[]`,
			want: nil,
		},
		{
			name: "blank input yields nothing",
			raw:  "   ",
			want: nil,
		},
		{
			name: "json null yields nothing",
			raw:  `null`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeSection(tt.raw))
		})
	}
}

func TestReportSectionsMatchDeclaredOrder(t *testing.T) {
	require.Len(t, reportSections, len(models.SectionNames))
	for i, spec := range reportSections {
		assert.Equal(t, models.SectionNames[i], spec.Name)
		assert.NotEmpty(t, spec.Query)
		assert.NotNil(t, spec.Schema)
	}
}
