package layout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeElements(t *testing.T, raw string) []apiElement {
	t.Helper()
	var elements []apiElement
	require.NoError(t, json.Unmarshal([]byte(raw), &elements))
	return elements
}

func TestMapElements(t *testing.T) {
	input := decodeElements(t, `[
		{"type": "CompositeElement", "text": "The property is a 120-unit garden complex."},
		{"type": "Table", "text": "Year NOI", "metadata": {"text_as_html": "<table><tr><td>Year</td><td>NOI</td></tr></table>"}},
		{"type": "Image", "metadata": {"image_base64": "aGVsbG8=", "image_mime_type": "image/jpeg"}},
		{"type": "Title", "text": "OFFERING MEMORANDUM"},
		{"type": "CompositeElement", "text": "   "},
		{"type": "Image", "metadata": {}}
	]`)

	elements := mapElements(input)
	require.Len(t, elements, 4)

	assert.Equal(t, KindText, elements[0].Kind)
	assert.Equal(t, "The property is a 120-unit garden complex.", elements[0].Text)

	assert.Equal(t, KindTable, elements[1].Kind)
	assert.Equal(t, "Year NOI", elements[1].Text)
	assert.Contains(t, elements[1].TableHTML, "<table>")

	assert.Equal(t, KindImage, elements[2].Kind)
	assert.Equal(t, "aGVsbG8=", elements[2].ImageBase64)
	assert.Equal(t, "image/jpeg", elements[2].ImageMIME)

	// Non-composite textual types still map to text; blank text and
	// payload-less images are dropped.
	assert.Equal(t, KindText, elements[3].Kind)
}

func TestMapElementsImageMIMEDefault(t *testing.T) {
	input := decodeElements(t, `[{"type": "Image", "metadata": {"image_base64": "Zm9v"}}]`)

	elements := mapElements(input)
	require.Len(t, elements, 1)
	assert.Equal(t, "image/png", elements[0].ImageMIME)
}

func TestMapElementsTableWithoutHTMLFallsBackToText(t *testing.T) {
	input := decodeElements(t, `[{"type": "Table", "text": "Unit Mix 1BR 2BR"}]`)

	elements := mapElements(input)
	require.Len(t, elements, 1)
	assert.Equal(t, KindTable, elements[0].Kind)
	assert.Equal(t, "Unit Mix 1BR 2BR", elements[0].TableHTML)
}

func TestPartitionAgainstFakeAPI(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "hi_res", r.FormValue("strategy"))
		assert.Equal(t, "by_title", r.FormValue("chunking_strategy"))
		assert.Equal(t, "true", r.FormValue("extract_image_block_to_payload"))

		json.NewEncoder(w).Encode([]map[string]any{
			{"type": "CompositeElement", "text": "asking price $14,500,000"},
		})
	}))
	defer server.Close()

	client := NewUnstructured(server.URL, "test-key")
	elements, err := client.Partition(context.Background(), strings.NewReader("%PDF-1.4"), "om.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/general/v0/general", gotPath)
	require.Len(t, elements, 1)
	assert.Equal(t, KindText, elements[0].Kind)
	assert.Equal(t, "asking price $14,500,000", elements[0].Text)
}

func TestPartitionAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewUnstructured(server.URL, "")
	_, err := client.Partition(context.Background(), strings.NewReader("%PDF-1.4"), "om.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
