package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon control socket.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the control socket.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon runtime snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call(serviceName+".Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordStart begins screen capture.
func (c *Client) RecordStart() (*RecordResponse, error) {
	return c.record("RecordStart")
}

// RecordPause suspends capture, discarding the partial segment.
func (c *Client) RecordPause() (*RecordResponse, error) {
	return c.record("RecordPause")
}

// RecordResume continues capture on a fresh segment boundary.
func (c *Client) RecordResume() (*RecordResponse, error) {
	return c.record("RecordResume")
}

// RecordStop ends capture, flushing the partial segment.
func (c *Client) RecordStop() (*RecordResponse, error) {
	return c.record("RecordStop")
}

func (c *Client) record(method string) (*RecordResponse, error) {
	var resp RecordResponse
	if err := c.client.Call(serviceName+"."+method, RecordRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Timeline retrieves cards overlapping the window.
func (c *Client) Timeline(from, to time.Time) (*TimelineResponse, error) {
	var resp TimelineResponse
	if err := c.client.Call(serviceName+".Timeline", TimelineRequest{From: from, To: to}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Batches retrieves batches, optionally filtered by status.
func (c *Client) Batches(statuses []string) (*BatchListResponse, error) {
	var resp BatchListResponse
	if err := c.client.Call(serviceName+".Batches", BatchListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats retrieves row counts by status.
func (c *Client) Stats() (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.client.Call(serviceName+".Stats", StatsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call(serviceName+".DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DigestTest triggers an immediate digest send for a period.
func (c *Client) DigestTest(period string) (*DigestTestResponse, error) {
	var resp DigestTestResponse
	if err := c.client.Call(serviceName+".DigestTest", DigestTestRequest{Period: period}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
