package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const DefaultTimeslotsURL = "https://payments2-jaonrqeeaq-ew.a.run.app/v1/orders/timeslots"

// MaxTimeslotsBody is the largest timeslots response that is accepted
const MaxTimeslotsBody = 1 << 20

var ErrTimeslots = errors.New("timeslots request failed")

type Product struct {
	BongCategoryID int    `json:"bongCategoryId"`
	ProductID      string `json:"productId" binding:"required"`
	ProductName    string `json:"productName"`
	Quantity       uint   `json:"quantity"`
}

type TimeslotRequest struct {
	RouteName string    `json:"routeName" binding:"required"`
	Products  []Product `json:"products" binding:"required,dive"`
}

// CacheKey identifies the request as the route name followed by the
// product ids, in request order.
func (r TimeslotRequest) CacheKey() string {
	ids := make([]string, len(r.Products))
	for i, p := range r.Products {
		ids[i] = p.ProductID
	}

	return r.RouteName + "-" + strings.Join(ids, "|")
}

// TimeslotClient forwards timeslot requests to the payments API.
type TimeslotClient struct {
	url  string
	http *http.Client
	log  *zap.Logger
}

func NewTimeslotClient(url string, httpClient *http.Client, log *zap.Logger) *TimeslotClient {
	if url == "" {
		url = DefaultTimeslotsURL
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultQueryTimeout}
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &TimeslotClient{url: url, http: httpClient, log: log}
}

// Fetch posts req and returns the response body as is.
func (t *TimeslotClient) Fetch(ctx context.Context, req TimeslotRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTimeslots, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxTimeslotsBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrTimeslots, err)
	}

	if len(body) > MaxTimeslotsBody {
		return nil, fmt.Errorf("%w: response is larger than %d bytes", ErrTimeslots, MaxTimeslotsBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.log.Warn("Timeslots request rejected",
			zap.String("routeName", req.RouteName),
			zap.Int("status", resp.StatusCode))

		if message := gjson.GetBytes(body, "message"); message.Exists() {
			return nil, fmt.Errorf("%w with status %d: %s", ErrTimeslots, resp.StatusCode, message.String())
		}

		return nil, fmt.Errorf("%w with status %d", ErrTimeslots, resp.StatusCode)
	}

	return body, nil
}
