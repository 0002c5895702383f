package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPClient talks to a MyMemory-style translation endpoint: a GET request
// carrying the text and a source|target language pair, answered by a JSON
// payload with an embedded status code and the translated text.
type HTTPClient struct {
	endpoint string
	client   *http.Client

	requests metric.Int64Counter
	failures metric.Int64Counter
}

func NewHTTPClient(endpoint string, timeout time.Duration) *HTTPClient {
	meter := otel.Meter("github.com/parlalabs/parla-core/translate")
	requests, _ := meter.Int64Counter("translate.requests",
		metric.WithDescription("Translation requests issued"))
	failures, _ := meter.Int64Counter("translate.failures",
		metric.WithDescription("Translation requests that failed"))

	return &HTTPClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		requests: requests,
		failures: failures,
	}
}

type responseData struct {
	TranslatedText string `json:"translatedText"`
}

type serviceResponse struct {
	ResponseStatus json.Number  `json:"responseStatus"`
	ResponseData   responseData `json:"responseData"`
}

func (c *HTTPClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	pair := sourceLang + "|" + targetLang
	query := url.Values{}
	query.Set("q", text)
	query.Set("langpair", pair)

	c.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("langpair", pair)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", c.fail(ctx, pair, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", c.fail(ctx, pair, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.fail(ctx, pair, fmt.Errorf("service returned status %s", resp.Status))
	}

	var payload serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", c.fail(ctx, pair, fmt.Errorf("decode response: %w", err))
	}
	if status, err := payload.ResponseStatus.Int64(); err != nil || status != 200 {
		return "", c.fail(ctx, pair, fmt.Errorf("service reported status %s", payload.ResponseStatus.String()))
	}

	return payload.ResponseData.TranslatedText, nil
}

func (c *HTTPClient) fail(ctx context.Context, pair string, cause error) error {
	c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("langpair", pair)))
	return fmt.Errorf("%w: %v", ErrTranslationFailed, cause)
}
