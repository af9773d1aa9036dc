package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"
)

// Unstructured calls an unstructured-io style partition API. Tables come
// back with both plain text and an HTML rendering; embedded images come back
// as base64 payloads.
type Unstructured struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewUnstructured creates a partition client for the given API base URL.
func NewUnstructured(baseURL, apiKey string) *Unstructured {
	return &Unstructured{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// NewUnstructuredFromEnv builds the client from UNSTRUCTURED_API_URL and
// UNSTRUCTURED_API_KEY.
func NewUnstructuredFromEnv() (*Unstructured, error) {
	baseURL := os.Getenv("UNSTRUCTURED_API_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("UNSTRUCTURED_API_URL not set")
	}
	return NewUnstructured(baseURL, os.Getenv("UNSTRUCTURED_API_KEY")), nil
}

// apiElement mirrors one element of the partition API response.
type apiElement struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Metadata struct {
		TextAsHTML    string `json:"text_as_html"`
		ImageBase64   string `json:"image_base64"`
		ImageMIMEType string `json:"image_mime_type"`
	} `json:"metadata"`
}

// Partition uploads the document and maps the response into tagged elements.
// Partition parameters mirror the hi_res, by_title chunking profile used for
// offering memoranda: large composite text chunks, table structure
// inference, and image payload extraction.
func (u *Unstructured) Partition(ctx context.Context, r io.Reader, filename string) ([]Element, error) {
	var body strings.Builder
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to copy file into request: %w", err)
	}

	params := map[string]string{
		"strategy":                       "hi_res",
		"chunking_strategy":              "by_title",
		"max_characters":                 "10000",
		"combine_under_n_chars":          "2000",
		"new_after_n_chars":              "6000",
		"infer_table_structure":          "true",
		"extract_image_block_types":      `["Image"]`,
		"extract_image_block_to_payload": "true",
	}
	for key, value := range params {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u.baseURL+"/general/v0/general", strings.NewReader(body.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if u.apiKey != "" {
		req.Header.Set("unstructured-api-key", u.apiKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("partition request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("partition API error: %d - %s", resp.StatusCode, string(respBody))
	}

	var apiElements []apiElement
	if err := json.NewDecoder(resp.Body).Decode(&apiElements); err != nil {
		return nil, fmt.Errorf("failed to decode partition response: %w", err)
	}

	return mapElements(apiElements), nil
}

// mapElements translates API element types into tagged variants once, at the
// adapter boundary. Elements with no usable content are dropped.
func mapElements(apiElements []apiElement) []Element {
	elements := make([]Element, 0, len(apiElements))
	for _, el := range apiElements {
		switch el.Type {
		case "Table":
			if el.Text == "" && el.Metadata.TextAsHTML == "" {
				continue
			}
			html := el.Metadata.TextAsHTML
			if html == "" {
				html = el.Text
			}
			elements = append(elements, Element{
				Kind:      KindTable,
				Text:      el.Text,
				TableHTML: html,
			})
		case "Image":
			if el.Metadata.ImageBase64 == "" {
				continue
			}
			mimeType := el.Metadata.ImageMIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			elements = append(elements, Element{
				Kind:        KindImage,
				ImageBase64: el.Metadata.ImageBase64,
				ImageMIME:   mimeType,
			})
		default:
			// CompositeElement and any other textual element types
			if strings.TrimSpace(el.Text) == "" {
				continue
			}
			elements = append(elements, Element{
				Kind: KindText,
				Text: el.Text,
			})
		}
	}
	return elements
}
