package biometric

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	id "vigil/pkg/domain"
	"vigil/pkg/sentinel"
)

// HTTPBackend talks JSON to a recognition service. Timeouts are the caller's
// responsibility via context; the adapter wraps every call in its configured
// backend timeout.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{baseURL: baseURL, client: client}
}

type addFaceRequest struct {
	SubjectID string `json:"subject_id"`
	Image     string `json:"image"`
}

type addFaceResponse struct {
	ImageID string `json:"image_id"`
}

func (b *HTTPBackend) AddFace(ctx context.Context, subjectID id.SubjectID, image []byte) (string, error) {
	var resp addFaceResponse
	err := b.post(ctx, "/faces", addFaceRequest{
		SubjectID: subjectID.String(),
		Image:     base64.StdEncoding.EncodeToString(image),
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ImageID, nil
}

type recognizeRequest struct {
	Image string `json:"image"`
	Limit int    `json:"limit"`
}

type recognizeResponse struct {
	Matches []struct {
		SubjectID  string  `json:"subject_id"`
		Similarity float64 `json:"similarity"`
	} `json:"matches"`
}

func (b *HTTPBackend) Recognize(ctx context.Context, image []byte, limit int) ([]Match, error) {
	var resp recognizeResponse
	err := b.post(ctx, "/recognize", recognizeRequest{
		Image: base64.StdEncoding.EncodeToString(image),
		Limit: limit,
	}, &resp)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, Match{
			SubjectID:  id.SubjectID(m.SubjectID),
			Similarity: m.Similarity,
		})
	}
	return matches, nil
}

func (b *HTTPBackend) DeleteFaces(ctx context.Context, subjectID id.SubjectID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.baseURL+"/faces/"+subjectID.String(), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: delete faces: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: delete faces: status %d", sentinel.ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete faces: status %d", resp.StatusCode)
	}
	return nil
}

func (b *HTTPBackend) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check: status %d", sentinel.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (b *HTTPBackend) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", sentinel.ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s: status %d", sentinel.ErrUnavailable, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
