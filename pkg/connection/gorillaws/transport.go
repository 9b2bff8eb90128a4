// Package gorillaws implements the connection.Connection transport over a
// gorilla/websocket connection with CBOR framing. The transport reconnects
// automatically with exponential backoff; it keeps no session state of its
// own, relying on the core to replay listens, pending writes, staged
// disconnect operations, and the credential after every reconnect.
package gorillaws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	gorilla "github.com/gorilla/websocket"

	"github.com/treesync/treesync.go/internal/rand"
	"github.com/treesync/treesync.go/pkg/connection"
	"github.com/treesync/treesync.go/pkg/constants"
	"github.com/treesync/treesync.go/pkg/logger"
	"github.com/treesync/treesync.go/pkg/query"
	"github.com/treesync/treesync.go/pkg/tree"
)

// DefaultDialer is the gorilla dialer used by Transport, with compression
// enabled and the cbor subprotocol announced.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  constants.DefaultWSTimeout,
	EnableCompression: true,
	Subprotocols:      []string{"cbor"},
}

type outboundFrame struct {
	Action    string         `cbor:"a"`
	RequestID string         `cbor:"r,omitempty"`
	WriteID   int64          `cbor:"id,omitempty"`
	Path      string         `cbor:"p,omitempty"`
	Data      any            `cbor:"d,omitempty"`
	Query     map[string]any `cbor:"q,omitempty"`
	Tag       string         `cbor:"t,omitempty"`
	Hash      uint64         `cbor:"h,omitempty"`
	HasHash   bool           `cbor:"hh,omitempty"`
	Cred      string         `cbor:"cred,omitempty"`
}

type inboundFrame struct {
	Kind   string          `cbor:"m"`
	Path   string          `cbor:"p"`
	Data   cbor.RawMessage `cbor:"d"`
	Merge  bool            `cbor:"merge"`
	Tag    string          `cbor:"t"`
	ID     int64           `cbor:"id"`
	Status string          `cbor:"s"`
}

// Transport is the default websocket transport.
type Transport struct {
	baseURL  string
	dialer   *gorilla.Dialer
	log      logger.Logger
	retryer  Retryer
	delegate connection.Delegate

	connMu sync.Mutex
	conn   *gorilla.Conn

	closeOnce sync.Once
	closeChan chan struct{}
}

// Option configures a Transport.
type Option func(t *Transport)

// WithLogger replaces the no-op default logger.
func WithLogger(log logger.Logger) Option {
	return func(t *Transport) { t.log = log }
}

// WithRetryer replaces the default exponential backoff schedule.
func WithRetryer(r Retryer) Option {
	return func(t *Transport) { t.retryer = r }
}

// WithDialer replaces DefaultDialer.
func WithDialer(d *gorilla.Dialer) Option {
	return func(t *Transport) { t.dialer = d }
}

// New creates a Transport for the given ws:// or wss:// base URL.
func New(baseURL string, opts ...Option) *Transport {
	t := &Transport{
		baseURL:   baseURL,
		dialer:    DefaultDialer,
		log:       logger.Nop(),
		retryer:   NewExponentialBackoffRetryer(),
		closeChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) SetDelegate(d connection.Delegate) {
	t.delegate = d
}

// Connect dials the backend and starts the read/reconnect loop.
func (t *Transport) Connect(ctx context.Context) error {
	if t.baseURL == "" {
		return constants.ErrNoBaseURL
	}
	if t.delegate == nil {
		return constants.ErrNoDelegate
	}

	conn, res, err := t.dialer.DialContext(ctx, fmt.Sprintf("%s/sync", t.baseURL), nil)
	if err != nil {
		// On handshake failure gorilla hands back the HTTP response too.
		if res != nil {
			res.Body.Close()
		}
		return err
	}
	defer res.Body.Close()

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()

	t.delegate.OnConnectionStatus(true)
	go t.readLoop(conn)
	return nil
}

// Close sends a close message and tears the connection down. The context
// bounds the close-message write; the connection is closed regardless.
func (t *Transport) Close(ctx context.Context) error {
	t.closeOnce.Do(func() { close(t.closeChan) })

	t.connMu.Lock()
	conn := t.conn
	t.connMu.Unlock()
	if conn == nil {
		return nil
	}

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- conn.WriteMessage(gorilla.CloseMessage,
			gorilla.FormatCloseMessage(constants.CloseMessageCode, ""))
	}()
	select {
	case err := <-writeErr:
		if err != nil {
			t.log.Error("failed to write close message", "error", err)
		}
	case <-ctx.Done():
	}
	return conn.Close()
}

func (t *Transport) SendWrite(w connection.OutboundWrite) {
	frame := outboundFrame{
		RequestID: rand.RequestID(constants.RequestIDLength),
		WriteID:   w.ID,
		Path:      w.Path.String(),
		Hash:      w.Condition,
		HasHash:   w.HasCondition,
	}
	switch w.Kind {
	case connection.WriteOverwrite:
		frame.Action = "put"
		frame.Data = w.Node.Export()
	case connection.WriteMerge:
		frame.Action = "merge"
		frame.Data = exportChildren(w.Children)
	case connection.WriteSetPriority:
		frame.Action = "priority"
		frame.Data = w.Node.Value()
	}
	t.write(frame)
}

func (t *Transport) Listen(path tree.Path, params query.Params, tag string) {
	t.write(outboundFrame{
		Action:    "listen",
		RequestID: rand.RequestID(constants.RequestIDLength),
		Path:      path.String(),
		Query:     params.Export(),
		Tag:       tag,
	})
}

func (t *Transport) Unlisten(path tree.Path, params query.Params, tag string) {
	t.write(outboundFrame{
		Action:    "unlisten",
		RequestID: rand.RequestID(constants.RequestIDLength),
		Path:      path.String(),
		Query:     params.Export(),
		Tag:       tag,
	})
}

func (t *Transport) StageDisconnectOp(op connection.DisconnectOp) {
	frame := outboundFrame{
		RequestID: rand.RequestID(constants.RequestIDLength),
		WriteID:   op.ID,
		Path:      op.Path.String(),
	}
	switch op.Kind {
	case connection.DisconnectSet:
		frame.Action = "o_put"
		frame.Data = op.Node.Export()
	case connection.DisconnectMerge:
		frame.Action = "o_merge"
		frame.Data = exportChildren(op.Children)
	case connection.DisconnectCancel:
		frame.Action = "o_cancel"
	}
	t.write(frame)
}

func (t *Transport) Auth(credential string) {
	t.write(outboundFrame{
		Action:    "auth",
		RequestID: rand.RequestID(constants.RequestIDLength),
		Cred:      credential,
	})
}

func (t *Transport) Unauth() {
	t.write(outboundFrame{
		Action:    "unauth",
		RequestID: rand.RequestID(constants.RequestIDLength),
	})
}

func exportChildren(children map[string]*tree.Node) map[string]any {
	out := make(map[string]any, len(children))
	for k, n := range children {
		out[k] = n.Export()
	}
	return out
}

// write marshals and transmits one frame. While disconnected frames are
// dropped; the core replays its state after the next reconnect.
func (t *Transport) write(frame outboundFrame) {
	data, err := cbor.Marshal(frame)
	if err != nil {
		t.log.Error("failed to marshal frame", "action", frame.Action, "error", err)
		return
	}

	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		t.log.Debug("dropping frame while disconnected", "action", frame.Action)
		return
	}
	if err := t.conn.WriteMessage(gorilla.BinaryMessage, data); err != nil {
		t.log.Warn("failed to write frame", "action", frame.Action, "error", err)
	}
}

func (t *Transport) readLoop(conn *gorilla.Conn) {
	for {
		select {
		case <-t.closeChan:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleDisconnect(err)
			return
		}
		t.handleFrame(data)
	}
}

func (t *Transport) handleDisconnect(err error) {
	select {
	case <-t.closeChan:
		return
	default:
	}

	t.connMu.Lock()
	t.conn = nil
	t.connMu.Unlock()

	if !errors.Is(err, net.ErrClosed) {
		t.log.Warn("connection lost", "error", err)
	}
	t.delegate.OnConnectionStatus(false)
	go t.reconnect(err)
}

// reconnect redials with backoff until it succeeds or the transport closes.
func (t *Transport) reconnect(lastErr error) {
	for attempt := 0; ; attempt++ {
		delay, retry := t.retryer.NextDelay(attempt, lastErr)
		if !retry {
			t.log.Error("giving up on reconnecting", "attempts", attempt)
			return
		}
		select {
		case <-t.closeChan:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultWSTimeout)
		err := t.Connect(ctx)
		cancel()
		if err == nil {
			t.retryer.Reset()
			return
		}
		lastErr = err
		t.log.Debug("reconnect attempt failed", "attempt", attempt, "error", err)
	}
}

func (t *Transport) handleFrame(data []byte) {
	var frame inboundFrame
	if err := cbor.Unmarshal(data, &frame); err != nil {
		t.log.Error("failed to unmarshal frame", "error", err)
		return
	}

	switch frame.Kind {
	case "data":
		path, err := tree.ParsePath(frame.Path)
		if err != nil {
			t.log.Error("server delta with invalid path", "path", frame.Path)
			return
		}
		node, err := decodeNode(frame.Data)
		if err != nil {
			t.log.Error("server delta with invalid payload", "path", frame.Path, "error", err)
			return
		}
		t.delegate.OnServerUpdate(path, node, frame.Merge, frame.Tag)
	case "write_result":
		t.delegate.OnWriteResult(frame.ID, statusErr(frame.Status))
	case "listen_revoked":
		path, err := tree.ParsePath(frame.Path)
		if err != nil {
			return
		}
		t.delegate.OnListenRevoked(path, query.Params{}, frame.Tag, statusErr(frame.Status))
	case "od_result":
		t.delegate.OnDisconnectOpResult(frame.ID, statusErr(frame.Status))
	case "auth_result":
		data, err := decodeAuthData(frame.Data)
		if err != nil {
			t.delegate.OnAuthResult(nil, err)
			return
		}
		t.delegate.OnAuthResult(data, statusErr(frame.Status))
	default:
		t.log.Warn("unknown frame kind", "kind", frame.Kind)
	}
}

func decodeNode(raw cbor.RawMessage) (*tree.Node, error) {
	if len(raw) == 0 {
		return tree.Empty, nil
	}
	var v any
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return tree.ValueOf(v)
}

func decodeAuthData(raw cbor.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := cbor.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func statusErr(status string) error {
	switch status {
	case "", "ok":
		return nil
	case "permission_denied":
		return constants.ErrPermissionDenied
	case "conflict":
		return constants.ErrConflict
	default:
		return errors.New(status)
	}
}
