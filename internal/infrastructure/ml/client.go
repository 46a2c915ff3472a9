package ml

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/crowdprices/evidence/internal/core/domain"
	"github.com/crowdprices/evidence/internal/infrastructure/resilience"
)

// Client talks to the inference service that hosts the detection and
// extraction models. Calls are rate limited client-side because the GPU
// backend degrades badly under burst load.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(baseURL string, requestsPerSecond float64, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		executor:   executor,
	}
}

type Detector struct {
	client *Client
}

func NewDetector(client *Client) *Detector {
	return &Detector{client: client}
}

// Detect runs the object detection model over the full proof image and
// returns every candidate region with its score, unfiltered.
func (d *Detector) Detect(ctx context.Context, image io.Reader) ([]domain.DetectedBox, string, error) {
	var response struct {
		ModelVersion string               `json:"model_version"`
		Boxes        []domain.DetectedBox `json:"boxes"`
	}
	if err := d.client.predict(ctx, "/predict/object_detection", image, &response); err != nil {
		return nil, "", err
	}
	return response.Boxes, response.ModelVersion, nil
}

type Extractor struct {
	client *Client
}

func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

func (e *Extractor) ExtractPriceTag(ctx context.Context, image io.Reader) (*domain.ExtractedPriceTag, string, error) {
	var response struct {
		ModelVersion string                    `json:"model_version"`
		PriceTag     *domain.ExtractedPriceTag `json:"price_tag"`
	}
	if err := e.client.predict(ctx, "/predict/price_tag_extraction", image, &response); err != nil {
		return nil, "", err
	}
	if response.PriceTag == nil {
		response.PriceTag = &domain.ExtractedPriceTag{}
	}
	return response.PriceTag, response.ModelVersion, nil
}

func (e *Extractor) ExtractReceipt(ctx context.Context, image io.Reader) ([]domain.ExtractedReceiptItem, string, error) {
	var response struct {
		ModelVersion string                        `json:"model_version"`
		Items        []domain.ExtractedReceiptItem `json:"items"`
	}
	if err := e.client.predict(ctx, "/predict/receipt_extraction", image, &response); err != nil {
		return nil, "", err
	}
	return response.Items, response.ModelVersion, nil
}

func (c *Client) predict(ctx context.Context, path string, image io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	operation := strings.TrimPrefix(path, "/predict/")

	// The image reader is single-use, so buffer it once up front and let
	// retries replay from the buffer.
	body, err := io.ReadAll(image)
	if err != nil {
		return fmt.Errorf("read %s image: %w", operation, err)
	}

	if c.executor == nil {
		return wrapTemporaryIfNeeded(operation, c.postImage(ctx, path, body, out, operation))
	}
	err = c.executor.Execute(ctx, operation, func(ctx context.Context) error {
		return c.postImage(ctx, path, body, out, operation)
	}, classifyInferenceError)
	return wrapTemporaryIfNeeded(operation, err)
}
