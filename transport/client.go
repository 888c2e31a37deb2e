package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"trackerd/content"
	"trackerd/trackererr"
)

// Client is a Cache.ContentTracker RPC client dialing one remote
// endpoint per call, mirroring the predecessor's bus client pattern of a
// short-lived connection per request rather than a pooled one.
type Client struct {
	Addr        string
	DialTimeout time.Duration
}

// NewClient returns a Client dialing addr, with a conservative default
// dial timeout; callers should still bound each call with a context
// carrying remote_construction_timeout_ms.
func NewClient(addr string) *Client {
	return &Client{Addr: addr, DialTimeout: 5 * time.Second}
}

// UpdateLocations sends entries to the remote tracker and waits for
// acknowledgement.
func (c *Client) UpdateLocations(ctx context.Context, entries []content.Entry) error {
	return c.call(ctx, MethodUpdateLocations, UpdateLocationsRequest{Entries: entries}, nil)
}

// GetLocations requests the remote tracker's view of hashes.
func (c *Client) GetLocations(ctx context.Context, hashes []string) ([]content.Entry, error) {
	var resp GetLocationsResponse
	if err := c.call(ctx, MethodGetLocations, GetLocationsRequest{Hashes: hashes}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) call(ctx context.Context, method string, reqBody, respBody interface{}) error {
	if err := ctx.Err(); err != nil {
		return trackererr.Wrap(trackererr.Cancelled, err, "call %s cancelled before dial", method)
	}

	conn, err := net.DialTimeout("tcp", c.Addr, c.DialTimeout)
	if err != nil {
		return trackererr.Wrap(trackererr.Transient, err, "dial %s for %s", c.Addr, method)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	body, err := cbor.Marshal(reqBody)
	if err != nil {
		return trackererr.Wrap(trackererr.Corrupted, err, "encode %s request", method)
	}
	payload, err := cbor.Marshal(envelope{ID: uuid.NewString(), Method: method, Body: body})
	if err != nil {
		return trackererr.Wrap(trackererr.Corrupted, err, "encode %s envelope", method)
	}
	if err := writeFrame(conn, payload); err != nil {
		return classifyIOErr(err, method)
	}

	respFrame, err := readFrame(conn)
	if err != nil {
		return classifyIOErr(err, method)
	}
	var respEnv envelope
	if err := cbor.Unmarshal(respFrame, &respEnv); err != nil {
		return trackererr.Wrap(trackererr.Corrupted, err, "decode %s response envelope", method)
	}
	if respEnv.Fault != "" {
		return trackererr.New(trackererr.PermanentRejected, "%s", respEnv.Fault)
	}
	if respBody != nil && len(respEnv.Body) > 0 {
		if err := cbor.Unmarshal(respEnv.Body, respBody); err != nil {
			return trackererr.Wrap(trackererr.Corrupted, err, "decode %s response body", method)
		}
	}
	return nil
}

func classifyIOErr(err error, method string) error {
	if errors.Is(err, context.Canceled) {
		return trackererr.Wrap(trackererr.Cancelled, err, "%s cancelled", method)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return trackererr.Wrap(trackererr.Transient, err, "%s timed out", method)
	}
	return trackererr.Wrap(trackererr.Transient, err, "%s transport io", method)
}
