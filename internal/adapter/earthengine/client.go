package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/ndvi-export/internal/domain"
	"github.com/couchcryptid/ndvi-export/internal/observability"
	"github.com/couchcryptid/ndvi-export/internal/session"
)

// Client submits image exports to, and reads operation state from, the
// imagery service REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an imagery service client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// StartExport submits req as an asynchronous GeoTIFF export to folder and
// returns the operation name. It does not wait for the export to run.
func (c *Client) StartExport(ctx context.Context, sess session.Session, req domain.CompositeRequest, folder, fileName string) (string, error) {
	prefix := strings.TrimSuffix(fileName, ".tif")
	body := exportRequest{
		Expression:  buildExpression(req),
		Description: prefix,
		RequestID:   domain.ExportRequestID(req, domain.RunIDFrom(ctx), folder, fileName),
		MaxPixels:   strconv.FormatFloat(req.MaxPixels, 'f', 0, 64),
		Grid:        &pixelGrid{CRSCode: req.CRS},
		FileExportOptions: fileExportOptions{
			FileFormat: "GEO_TIFF",
			DriveDestination: driveDestination{
				Folder:         folder,
				FilenamePrefix: prefix,
			},
		},
	}

	u := fmt.Sprintf("%s/v1/projects/%s/image:export", c.baseURL, url.PathEscape(sess.Project))
	var op operation
	if err := c.do(ctx, sess, http.MethodPost, u, body, &op, "export"); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("export response for %s carried no operation name", prefix)
	}
	if op.Error != nil {
		return "", fmt.Errorf("export %s rejected: %s", prefix, op.Error.Message)
	}
	return op.Name, nil
}

// OperationStatus reads the current state of an export operation.
func (c *Client) OperationStatus(ctx context.Context, sess session.Session, handle string) (domain.Status, error) {
	u := fmt.Sprintf("%s/v1/%s", c.baseURL, handle)
	var op operation
	if err := c.do(ctx, sess, http.MethodGet, u, nil, &op, "operation"); err != nil {
		return domain.StatusUnknown, err
	}
	if op.Error != nil {
		c.logger.Warn("export operation failed", "handle", handle, "error", op.Error.Message)
		return domain.StatusFailed, nil
	}
	return mapState(op.Metadata.State, op.Done), nil
}

func (c *Client) do(ctx context.Context, sess session.Session, method, fullURL string, in, out any, source string) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", source, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.APIDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("imagery API error: status %d: %s", resp.StatusCode, apiErrorMessage(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", source, err)
	}
	return nil
}

// mapState converts an operation state into an export task status.
func mapState(state string, done bool) domain.Status {
	switch state {
	case "PENDING":
		return domain.StatusSubmitted
	case "RUNNING", "CANCELLING":
		return domain.StatusRunning
	case "SUCCEEDED":
		return domain.StatusCompleted
	case "FAILED", "CANCELLED":
		return domain.StatusFailed
	}
	if done {
		return domain.StatusCompleted
	}
	return domain.StatusUnknown
}

// apiErrorMessage extracts error.message from a JSON error body, falling back
// to the raw body.
func apiErrorMessage(body []byte) string {
	var e struct {
		Error *apiError `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != nil && e.Error.Message != "" {
		if e.Error.Status != "" {
			return e.Error.Status + ": " + e.Error.Message
		}
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// REST API request and response types.

type exportRequest struct {
	Expression        expression        `json:"expression"`
	Description       string            `json:"description"`
	RequestID         string            `json:"requestId,omitempty"`
	MaxPixels         string            `json:"maxPixels"`
	Grid              *pixelGrid        `json:"grid,omitempty"`
	FileExportOptions fileExportOptions `json:"fileExportOptions"`
}

type pixelGrid struct {
	CRSCode string `json:"crsCode"`
}

type fileExportOptions struct {
	FileFormat       string           `json:"fileFormat"`
	DriveDestination driveDestination `json:"driveDestination"`
}

type driveDestination struct {
	Folder         string `json:"folder"`
	FilenamePrefix string `json:"filenamePrefix"`
}

type operation struct {
	Name     string            `json:"name"`
	Done     bool              `json:"done"`
	Metadata operationMetadata `json:"metadata"`
	Error    *apiError         `json:"error,omitempty"`
}

type operationMetadata struct {
	State       string `json:"state"`
	Description string `json:"description"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
