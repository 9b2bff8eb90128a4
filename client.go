package treesync

import (
	"context"
	"fmt"
	"net/url"

	"github.com/treesync/treesync.go/internal/repo"
	"github.com/treesync/treesync.go/pkg/connection"
	"github.com/treesync/treesync.go/pkg/connection/gorillaws"
	"github.com/treesync/treesync.go/pkg/constants"
	"github.com/treesync/treesync.go/pkg/logger"
	"github.com/treesync/treesync.go/pkg/tree"
)

// Client owns the connection to the server and the locally synchronized
// view of the remote tree. All callbacks registered through a Client's
// Refs are delivered sequentially on a single internal goroutine.
type Client struct {
	conn connection.Connection
	repo *repo.Repo
	log  logger.Logger
	base string
	root tree.Path
}

type config struct {
	conn   connection.Connection
	log    logger.Logger
	buffer int
}

// Option configures a Client created by New.
type Option func(*config)

// WithLogger sets the logger used by the client and, when the default
// transport is in use, by the transport as well.
func WithLogger(log logger.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithConnection replaces the default websocket transport. The base URL
// passed to New is ignored for dialing when a custom connection is set.
func WithConnection(conn connection.Connection) Option {
	return func(c *config) {
		c.conn = conn
	}
}

// WithDispatchBuffer sets the initial capacity of the client's internal
// dispatch queue. Useful for applications that burst large numbers of
// writes or observers; the queue still grows on demand.
func WithDispatchBuffer(n int) Option {
	return func(c *config) {
		c.buffer = n
	}
}

// New connects to the store at rawURL and returns a Client rooted at the
// URL's path. The scheme must be ws or wss; https and http are accepted
// and mapped to their websocket equivalents.
func New(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	cfg := &config{log: logger.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case constants.WebsocketScheme, constants.WebsocketSecureScheme:
	case "http":
		u.Scheme = constants.WebsocketScheme
	case "https":
		u.Scheme = constants.WebsocketSecureScheme
	default:
		return nil, fmt.Errorf("unsupported scheme %q: %w", u.Scheme, constants.ErrNoBaseURL)
	}
	if u.Host == "" {
		return nil, constants.ErrNoBaseURL
	}
	root, err := tree.ParsePath(u.Path)
	if err != nil {
		return nil, err
	}

	conn := cfg.conn
	if conn == nil {
		conn = gorillaws.New(u.Scheme+"://"+u.Host, gorillaws.WithLogger(cfg.log))
	}

	c := &Client{
		conn: conn,
		repo: repo.New(conn, cfg.log, cfg.buffer),
		log:  cfg.log,
		base: u.Scheme + "://" + u.Host,
		root: root,
	}
	if err := conn.Connect(ctx); err != nil {
		c.repo.Close()
		return nil, err
	}
	return c, nil
}

// Root returns a Ref for the location the Client was created at.
func (c *Client) Root() *Ref {
	return &Ref{client: c, path: c.root}
}

// Ref returns a Ref for the given slash separated path below the root.
func (c *Client) Ref(path string) (*Ref, error) {
	p, err := tree.ParsePath(path)
	if err != nil {
		return nil, err
	}
	return &Ref{client: c, path: c.root.Append(p)}, nil
}

// Close cancels all pending writes, detaches all observers and closes
// the connection. The Client cannot be reused afterwards.
func (c *Client) Close(ctx context.Context) error {
	c.repo.Close()
	return c.conn.Close(ctx)
}
