package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dcastano/inspectord/internal/domain"
)

// InferenceClient talks to a remote model server over HTTP. The server
// hosts the detection models (damage, parts, OCR, tamper); each call posts
// raw image bytes and decodes a JSON response. Timeouts and transport
// failures surface as errors; the orchestrator degrades them to empty
// results for that modality.
type InferenceClient struct {
	base string
	hc   *http.Client
}

// NewInferenceClient creates a client for the model server at base URL.
func NewInferenceClient(base string) *InferenceClient {
	return &InferenceClient{
		base: base,
		hc: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DetectDamage implements DamageDetector.
func (c *InferenceClient) DetectDamage(ctx context.Context, img []byte, confidence float64) ([]domain.DamageBox, error) {
	var out []domain.DamageBox
	err := c.post(ctx, "/detect/damage", img, confidence, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DetectParts implements PartsDetector.
func (c *InferenceClient) DetectParts(ctx context.Context, img []byte, confidence float64) (map[string]domain.PartPresence, error) {
	var out map[string]domain.PartPresence
	err := c.post(ctx, "/detect/parts", img, confidence, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadText implements OCRReader.
func (c *InferenceClient) ReadText(ctx context.Context, img []byte) ([]domain.OCRCandidate, error) {
	var out []domain.OCRCandidate
	err := c.post(ctx, "/ocr", img, 0, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ScoreTamper implements TamperScorer.
func (c *InferenceClient) ScoreTamper(ctx context.Context, img []byte) (*domain.TamperVerdict, error) {
	var out domain.TamperVerdict
	err := c.post(ctx, "/tamper", img, 0, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *InferenceClient) post(ctx context.Context, path string, img []byte, confidence float64, out any) error {
	endpoint := c.base + path
	if confidence > 0 {
		endpoint += "?confidence=" + url.QueryEscape(strconv.FormatFloat(confidence, 'f', -1, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(img))
	if err != nil {
		return fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("inference call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference call %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode inference response %s: %w", path, err)
	}
	return nil
}
