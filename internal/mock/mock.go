// Package mock provides an in-memory Connection that records outbound
// traffic for tests. Tests play the server by invoking the delegate
// directly.
package mock

import (
	"context"
	"sync"

	"github.com/treesync/treesync.go/pkg/connection"
	"github.com/treesync/treesync.go/pkg/query"
	"github.com/treesync/treesync.go/pkg/tree"
)

// ListenRequest records one Listen or Unlisten call.
type ListenRequest struct {
	Path   tree.Path
	Params query.Params
	Tag    string
}

type Connection struct {
	mu       sync.Mutex
	delegate connection.Delegate

	// AutoAckWrites makes every SendWrite succeed immediately.
	AutoAckWrites bool

	writes    []connection.OutboundWrite
	listens   []ListenRequest
	unlistens []ListenRequest
	staged    []connection.DisconnectOp
	auths     []string
	unauths   int
}

func New() *Connection {
	return &Connection{}
}

func (c *Connection) SetDelegate(d connection.Delegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

func (c *Connection) Delegate() connection.Delegate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate
}

func (c *Connection) Connect(ctx context.Context) error {
	c.Delegate().OnConnectionStatus(true)
	return nil
}

func (c *Connection) Close(ctx context.Context) error {
	c.Delegate().OnConnectionStatus(false)
	return nil
}

func (c *Connection) SendWrite(w connection.OutboundWrite) {
	c.mu.Lock()
	c.writes = append(c.writes, w)
	auto := c.AutoAckWrites
	d := c.delegate
	c.mu.Unlock()
	if auto {
		d.OnWriteResult(w.ID, nil)
	}
}

func (c *Connection) Listen(path tree.Path, params query.Params, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listens = append(c.listens, ListenRequest{Path: path, Params: params, Tag: tag})
}

func (c *Connection) Unlisten(path tree.Path, params query.Params, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unlistens = append(c.unlistens, ListenRequest{Path: path, Params: params, Tag: tag})
}

func (c *Connection) StageDisconnectOp(op connection.DisconnectOp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = append(c.staged, op)
}

func (c *Connection) Auth(credential string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auths = append(c.auths, credential)
}

func (c *Connection) Unauth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unauths++
}

func (c *Connection) Writes() []connection.OutboundWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]connection.OutboundWrite(nil), c.writes...)
}

func (c *Connection) Listens() []ListenRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ListenRequest(nil), c.listens...)
}

func (c *Connection) Unlistens() []ListenRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ListenRequest(nil), c.unlistens...)
}

func (c *Connection) Staged() []connection.DisconnectOp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]connection.DisconnectOp(nil), c.staged...)
}

func (c *Connection) Auths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.auths...)
}

func (c *Connection) Unauths() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unauths
}
