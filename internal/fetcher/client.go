package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Zachdehooge/traffic-dashboard/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	readyStatus = "API is running"
	tracerName  = "github.com/Zachdehooge/traffic-dashboard/internal/fetcher"
)

// Backend endpoints.
const (
	EndpointStatus        = "/"
	EndpointUploadModel   = "/upload-model"
	EndpointUploadCSV     = "/upload-csv"
	EndpointSamplePredict = "/sample-predict"
)

var (
	// ErrUnreachable wraps every transport-level failure talking to the backend.
	ErrUnreachable = errors.New("prediction backend unreachable")
	// ErrBadCoordinates marks a result row that cannot be placed on a map.
	ErrBadCoordinates = errors.New("record has invalid coordinates")
)

// APIError is a non-2xx answer from the backend. Detail is the backend's
// "detail" field verbatim.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Detail)
}

// UnreachableMessage is shown to users when the backend cannot be reached.
const UnreachableMessage = "Cannot connect to the API server. Please ensure the backend is running."

// UserMessage renders err the way the dashboard reports failures to users:
// validation guidance as is, backend rejections as "Error: <detail>" and
// connectivity failures as UnreachableMessage.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Guidance
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return "Error: " + apiErr.Detail
	}
	if errors.Is(err, ErrUnreachable) {
		return UnreachableMessage
	}
	return "Error: " + err.Error()
}

// RequestObserver receives one observation per backend call. code is 0 when
// the request never produced a response.
type RequestObserver interface {
	ObserveBackendRequest(endpoint string, code int, elapsed time.Duration)
}

// Client talks to the traffic prediction backend.
type Client struct {
	baseURL  string
	http     *http.Client
	log      logging.Logger
	observer RequestObserver
	tracer   trace.Tracer
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithLogger(log logging.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func WithObserver(o RequestObserver) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient builds a Client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     logging.Noop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Status checks whether the backend is running and which models it loaded.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, EndpointStatus, nil, "", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// UploadModel sends a pickled model for one of the ModelTypes slots and
// returns the backend's confirmation message.
func (c *Client) UploadModel(ctx context.Context, modelType, path string) (string, error) {
	if err := ValidateModel(modelType, path); err != nil {
		return "", err
	}

	body, contentType, err := multipartBody(path, "model_file", map[string]string{"model_type": modelType})
	if err != nil {
		return "", err
	}

	var result struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, EndpointUploadModel, body, contentType, &result); err != nil {
		return "", err
	}
	return result.Message, nil
}

// UploadCSV submits a CSV of locations and returns the per-row predictions.
func (c *Client) UploadCSV(ctx context.Context, path string) ([]LocationRecord, error) {
	if err := ValidateCSV(path); err != nil {
		return nil, err
	}

	body, contentType, err := multipartBody(path, "file", nil)
	if err != nil {
		return nil, err
	}
	return c.results(ctx, EndpointUploadCSV, body, contentType)
}

// SamplePredict asks the backend for its built-in demo locations.
func (c *Client) SamplePredict(ctx context.Context) ([]LocationRecord, error) {
	return c.results(ctx, EndpointSamplePredict, nil, "")
}

func (c *Client) results(ctx context.Context, endpoint string, body io.Reader, contentType string) ([]LocationRecord, error) {
	var resp struct {
		Results []rawRecord `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, body, contentType, &resp); err != nil {
		return nil, err
	}
	records, err := toRecords(resp.Results)
	if err != nil {
		return nil, err
	}
	c.log.Debug(ctx, "received predictions",
		logging.String("endpoint", endpoint),
		logging.Int("records", len(records)))
	return records, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "backend "+method+" "+endpoint, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("backend.endpoint", endpoint),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	code := 0
	defer func() {
		if c.observer != nil {
			c.observer.ObserveBackendRequest(endpoint, code, time.Since(start))
		}
	}()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn(ctx, "backend request failed",
			logging.String("endpoint", endpoint), logging.Err(err))
		return fmt.Errorf("%w: %s %s: %w", ErrUnreachable, method, endpoint, err)
	}
	defer resp.Body.Close()
	code = resp.StatusCode
	span.SetAttributes(attribute.Int("http.status_code", code))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %w", ErrUnreachable, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: errorDetail(data, resp.StatusCode)}
		c.log.Warn(ctx, "backend rejected request",
			logging.String("endpoint", endpoint),
			logging.Int("status", resp.StatusCode),
			logging.String("detail", apiErr.Detail))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// errorDetail extracts "detail" from an error body. FastAPI sends a string for
// HTTPException and a list of objects for request validation failures.
func errorDetail(data []byte, status int) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err == nil && len(body.Detail) > 0 {
		var s string
		if err := json.Unmarshal(body.Detail, &s); err == nil {
			return s
		}
		return string(body.Detail)
	}
	return http.StatusText(status)
}

func multipartBody(path, fileField string, fields map[string]string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("multipart field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(fileField, filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("multipart file %s: %w", fileField, err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// rawRecord keeps absent and null coordinates distinguishable from zero.
type rawRecord struct {
	LocationID  *int        `json:"location_id"`
	Latitude    *float64    `json:"latitude"`
	Longitude   *float64    `json:"longitude"`
	Predictions *Prediction `json:"predictions"`
}

// toRecords rejects the whole batch when any row lacks a usable position.
func toRecords(rows []rawRecord) ([]LocationRecord, error) {
	records := make([]LocationRecord, 0, len(rows))
	for i, r := range rows {
		if r.Latitude == nil || r.Longitude == nil {
			return nil, fmt.Errorf("%w: row %d has no coordinates", ErrBadCoordinates, i)
		}
		lat, lng := *r.Latitude, *r.Longitude
		if !validLatitude(lat) || !validLongitude(lng) {
			return nil, fmt.Errorf("%w: row %d (%v, %v)", ErrBadCoordinates, i, lat, lng)
		}
		records = append(records, LocationRecord{
			LocationID:  r.LocationID,
			Latitude:    lat,
			Longitude:   lng,
			Predictions: r.Predictions,
		})
	}
	return records, nil
}

func validLatitude(v float64) bool {
	return !math.IsNaN(v) && v >= -90 && v <= 90
}

func validLongitude(v float64) bool {
	return !math.IsNaN(v) && v >= -180 && v <= 180
}
