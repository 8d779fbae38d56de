package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
	"tripscore/internal/model"
)

var ErrUnavailable = errors.New("detector unavailable")

// HTTP calls a remote inference service that accepts a multipart "image"
// upload and answers with a list of classified signs.
type HTTP struct {
	endpoint  string
	threshold float64
	client    *http.Client
	catalog   *catalog.Catalog
}

type detectResponse struct {
	Detections []detectResult `json:"detections"`
}

type detectResult struct {
	ClassID    *int               `json:"class_id"`
	ClassName  string             `json:"class_name"`
	Confidence float64            `json:"confidence"`
	BBox       *box               `json:"bbox"`
}

// box accepts the service's corner list [x1, y1, x2, y2] as well as an
// {x, y, width, height} object.
type box model.BoundingBox

func (b *box) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var corners []float64
		if err := json.Unmarshal(data, &corners); err != nil {
			return err
		}
		if len(corners) != 4 {
			return fmt.Errorf("bbox needs 4 corner values, got %d", len(corners))
		}
		*b = box{X: corners[0], Y: corners[1], Width: corners[2] - corners[0], Height: corners[3] - corners[1]}
		return nil
	}
	var obj model.BoundingBox
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*b = box(obj)
	return nil
}

func NewHTTP(cfg config.DetectorConfig, cat *catalog.Catalog) (*HTTP, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("detector endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("detector endpoint: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cat == nil {
		cat = catalog.Default()
	}
	return &HTTP{
		endpoint:  endpoint,
		threshold: cfg.ConfidenceThreshold,
		client:    &http.Client{Timeout: timeout},
		catalog:   cat,
	}, nil
}

func (h *HTTP) Detect(ctx context.Context, image []byte) ([]model.RawDetection, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	u, err := url.Parse(h.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("confidence_threshold", strconv.FormatFloat(h.threshold, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode detector response: %w", err)
	}
	out := make([]model.RawDetection, 0, len(decoded.Detections))
	for _, d := range decoded.Detections {
		if d.Confidence < h.threshold {
			continue
		}
		id, err := h.classID(d)
		if err != nil {
			return nil, err
		}
		det := model.RawDetection{ClassID: id, Confidence: d.Confidence}
		if d.BBox != nil {
			bb := model.BoundingBox(*d.BBox)
			det.BBox = &bb
		}
		out = append(out, det)
	}
	return out, nil
}

func (h *HTTP) classID(d detectResult) (int, error) {
	if d.ClassID != nil {
		return *d.ClassID, nil
	}
	entry, err := h.catalog.Resolve(d.ClassName)
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}
