package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/google/uuid"
	"github.com/obz-ai/obz/pkg/projector"
)

// --- JSON Payloads ---

// TokenInfo is the backend's verdict on an API token.
type TokenInfo struct {
	Valid   bool   `json:"valid"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// InitProjectRequest creates (or reopens) a project.
type InitProjectRequest struct {
	Name        string `json:"project_name"`
	Description string `json:"description,omitempty"`
}

// Project identifies a backend project.
type Project struct {
	ID      string `json:"project_id"`
	Name    string `json:"project_name"`
	Created bool   `json:"created"`
}

// ImageUpload is a single image logged against a project.
type ImageUpload struct {
	ProjectID string
	Filename  string
	Content   []byte
	Metadata  map[string]string
}

// UploadResult identifies an uploaded object.
type UploadResult struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// RefEntryRequest registers a reference dataset for a project.
type RefEntryRequest struct {
	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	Samples    int    `json:"samples"`
	FeatureDim int    `json:"feature_dim"`
}

// RefEntry identifies a reference dataset.
type RefEntry struct {
	ID string `json:"ref_entry_id"`
}

// RefFeatures are the embeddings of a reference dataset together with their
// projected coordinates.
type RefFeatures struct {
	RefEntryID string
	Features   [][]float32
	Precision  Precision
	PCACoords  []projector.Point
	UMAPCoords []projector.Point
}

// LogEntry is a metrics/parameters record. ID and Timestamp are filled in
// when empty.
type LogEntry struct {
	ID        string             `json:"id"`
	ProjectID string             `json:"project_id"`
	Name      string             `json:"name,omitempty"`
	Step      int                `json:"step,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Params    map[string]string  `json:"params,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// --- Auth & Project ---

// VerifyAPIToken checks the configured token against the backend.
// A rejected token returns the backend's TokenInfo together with ErrInvalidToken.
func (c *Client) VerifyAPIToken(ctx context.Context) (*TokenInfo, error) {
	if c.token == "" {
		return nil, ErrMissingToken
	}
	var info TokenInfo
	if err := c.jsonRequest(ctx, EndpointAuth, map[string]string{"api_token": c.token}, &info); err != nil {
		return nil, err
	}
	if !info.Valid {
		return &info, ErrInvalidToken
	}
	return &info, nil
}

// InitProject creates a project, or returns the existing one with the same name.
func (c *Client) InitProject(ctx context.Context, req InitProjectRequest) (*Project, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	var project Project
	if err := c.jsonRequest(ctx, EndpointInitProject, req, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// --- Reference Data ---

// CreateRefEntry registers a reference dataset and returns its id.
func (c *Client) CreateRefEntry(ctx context.Context, req RefEntryRequest) (*RefEntry, error) {
	if req.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	var entry RefEntry
	if err := c.jsonRequest(ctx, EndpointCreateRefEntry, req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UploadRefFeatures uploads reference embeddings and their coordinates.
func (c *Client) UploadRefFeatures(ctx context.Context, rf RefFeatures) error {
	if rf.RefEntryID == "" {
		return fmt.Errorf("ref entry id is required")
	}
	features, err := encodeFeatures(rf.Features, rf.Precision)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"ref_entry_id": rf.RefEntryID,
		"precision":    features.Precision,
		"dims":         features.Dims,
		"features":     features.Rows,
	}
	if rf.PCACoords != nil {
		payload["pca_coords"] = rf.PCACoords
	}
	if rf.UMAPCoords != nil {
		payload["umap_coords"] = rf.UMAPCoords
	}
	return c.jsonRequest(ctx, EndpointUploadRefFeatures, payload, nil)
}

// --- Logging ---

// UploadImage sends an image as multipart/form-data.
func (c *Client) UploadImage(ctx context.Context, img ImageUpload) (*UploadResult, error) {
	if len(img.Content) == 0 {
		return nil, fmt.Errorf("image content is empty")
	}
	filename := img.Filename
	if filename == "" {
		filename = uuid.NewString()
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("project_id", img.ProjectID); err != nil {
		return nil, err
	}
	if len(img.Metadata) > 0 {
		meta, err := json.Marshal(img.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal image metadata: %w", err)
		}
		if err := w.WriteField("metadata", string(meta)); err != nil {
			return nil, err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	h.Set("Content-Type", http.DetectContentType(img.Content))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(img.Content); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	respBody, err := c.do(ctx, request{
		endpoint:    EndpointUploadImage,
		method:      http.MethodPost,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	})
	if err != nil {
		return nil, err
	}

	var result UploadResult
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("invalid JSON response for %s: %w", EndpointUploadImage, err)
		}
	}
	return &result, nil
}

// Log sends a log entry and returns its id.
func (c *Client) Log(ctx context.Context, entry LogEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := c.jsonRequest(ctx, EndpointLog, entry, nil); err != nil {
		return "", err
	}
	return entry.ID, nil
}
