package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Spinkelben/MarketDash/protocol"
)

func VendorsPath(clientUnit string) string {
	return "/clientUnits/" + clientUnit + "/all"
}

func MenuPath(vendorRoute string) string {
	return "/Clients/" + vendorRoute + "/activeMenu/categories"
}

// ValidateRoute checks that a vendor route can be used as a single path
// segment.
func ValidateRoute(route string) error {
	if route == "" {
		return fmt.Errorf("%w: route is empty", protocol.ErrInvalidRoute)
	}

	if strings.ContainsAny(route, "/.#$[]") {
		return fmt.Errorf("%w '%s'", protocol.ErrInvalidRoute, route)
	}

	for _, r := range route {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: route contains control characters", protocol.ErrInvalidRoute)
		}
	}

	return nil
}

// GetVendors fetches the vendor list of the configured client unit.
func (c *Client) GetVendors(ctx context.Context, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.withRetry(ctx, "get vendors", func() (json.RawMessage, error) {
		return c.fetch(ctx, VendorsPath(c.clientUnit), timeout)
	})
}

// GetVendorMenu fetches the active menu categories of a vendor.
func (c *Client) GetVendorMenu(ctx context.Context, vendorRoute string, timeout time.Duration) (json.RawMessage, error) {
	if err := ValidateRoute(vendorRoute); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.withRetry(ctx, "get vendor menu", func() (json.RawMessage, error) {
		return c.fetch(ctx, MenuPath(vendorRoute), timeout)
	})
}

func (c *Client) fetch(ctx context.Context, path string, timeout time.Duration) (json.RawMessage, error) {
	requestID, err := c.sendQuery(path)
	if err != nil {
		return nil, err
	}

	msg, err := c.awaitResult(ctx, requestID, timeout)
	if err != nil {
		return nil, err
	}

	if msg.Body.Data == nil {
		return nil, fmt.Errorf("%w for '%s'", protocol.ErrNoData, path)
	}

	return msg.Body.Data, nil
}

// sendQuery writes a query for path and returns its request ID.
func (c *Client) sendQuery(path string) (uint64, error) {
	if c.State() != Connected {
		return 0, protocol.ErrNotConnected
	}

	requestID := c.nextRequestID

	raw, err := protocol.Marshal(protocol.NewQuery(requestID, path))
	if err != nil {
		return 0, err
	}

	if err := c.socket.Send(string(raw)); err != nil {
		c.disconnect(err)
		return 0, err
	}

	c.nextRequestID++

	return requestID, nil
}

// awaitResult reads the reply to requestID and the status acknowledgement
// that follows it.
func (c *Client) awaitResult(ctx context.Context, requestID uint64, timeout time.Duration) (protocol.DataMessage, error) {
	payload, err := c.readFor(ctx, requestID, timeout)
	if err != nil {
		return protocol.DataMessage{}, err
	}

	ack, err := c.readFor(ctx, requestID, timeout)
	if err != nil {
		return protocol.DataMessage{}, err
	}

	switch ack.Body.Status {
	case protocol.StatusOk:

	case protocol.StatusFail:
		return protocol.DataMessage{}, fmt.Errorf("%w: request %d", protocol.ErrRequestFailed, requestID)

	default:
		return protocol.DataMessage{}, fmt.Errorf("%w: no status found for request %d", protocol.ErrProtocolViolation, requestID)
	}

	if payload.Action != protocol.ActionData {
		return protocol.DataMessage{}, fmt.Errorf("%w: expected a data reply for request %d, got action '%s'",
			protocol.ErrProtocolViolation, requestID, payload.Action)
	}

	return payload, nil
}

// readFor reads the next data message, skipping acknowledgements left over
// from earlier requests that timed out. Skipped messages count against the
// same timeout. A chunked message that is cut short drops the connection, the
// rest of its chunks would otherwise be read as the next messages.
func (c *Client) readFor(ctx context.Context, requestID uint64, timeout time.Duration) (protocol.DataMessage, error) {
	r := reader{c: c, deadline: time.Now().Add(timeout)}

	for {
		msg, err := protocol.ReadData(ctx, r, timeout)
		if err != nil {
			if errors.Is(err, protocol.ErrPartialMessage) && c.socket != nil {
				c.disconnect(err)
			}
			return protocol.DataMessage{}, err
		}

		if msg.RequestID != nil && *msg.RequestID != requestID {
			c.log.Warn("Skipping stale message",
				zap.Uint64("requestID", *msg.RequestID),
				zap.Uint64("expected", requestID))
			continue
		}

		return msg, nil
	}
}

// reader adapts the client's socket to protocol.FrameReader. No wait runs
// past deadline. Transport failures drop the connection before they are
// returned.
type reader struct {
	c        *Client
	deadline time.Time
}

func (r reader) Receive(ctx context.Context, timeout time.Duration) (string, error) {
	if r.c.socket == nil {
		return "", protocol.ErrNotConnected
	}

	remaining := time.Until(r.deadline)
	if remaining <= 0 {
		return "", fmt.Errorf("%w after %s", protocol.ErrTimeout, timeout)
	}

	if remaining < timeout {
		timeout = remaining
	}

	text, err := r.c.socket.Receive(ctx, timeout)
	if err != nil && errors.Is(err, protocol.ErrTransport) {
		r.c.disconnect(err)
	}

	return text, err
}
