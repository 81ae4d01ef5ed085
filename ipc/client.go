// ABOUTME: IPC client implementing the Store contract over the loopback WebSocket
// ABOUTME: Requests are matched to envelopes by UUID; failures become *RemoteError
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/models"
	"github.com/harperreed/crmdesk/store"
)

type Client struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan Envelope
	done    chan struct{}
	err     error
}

var _ store.Store = (*Client)(nil)

// Dial connects to the bridge at url ("ws://127.0.0.1:7733") with the session token.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	conn.SetReadLimit(MaxMessageBytes)

	c := &Client{
		conn:    conn,
		pending: make(map[string]chan Envelope),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	req := Request{ID: uuid.NewString(), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode %s params: %w", method, err)
		}
		req.Params = raw
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	ch := make(chan Envelope, 1)
	c.mu.Lock()
	c.pending[req.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}

	var env Envelope
	select {
	case env = <-ch:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	if !env.Success {
		return &RemoteError{Method: method, Message: env.Error, Code: env.Code}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := decodeJSON(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) GetAll(ctx context.Context, table db.Table) ([]db.Row, error) {
	def, err := table.Def()
	if err != nil {
		return nil, err
	}
	var rows []db.Row
	if err := c.call(ctx, MethodGetAll, tableParams{Table: table}, &rows); err != nil {
		return nil, err
	}
	out := make([]db.Row, len(rows))
	for i, r := range rows {
		out[i] = def.Normalize(r)
	}
	return out, nil
}

func (c *Client) Insert(ctx context.Context, table db.Table, row db.Row) (int64, error) {
	def, err := table.Def()
	if err != nil {
		return 0, err
	}
	values, err := def.Coerce(row)
	if err != nil {
		return 0, err
	}
	var res idResult
	err = c.call(ctx, MethodInsert, insertParams{Table: table, Row: values}, &res)
	return res.ID, err
}

func (c *Client) Update(ctx context.Context, table db.Table, id int64, patch db.Row) (int64, error) {
	def, err := table.Def()
	if err != nil {
		return 0, err
	}
	values, err := def.Coerce(patch)
	if err != nil {
		return 0, err
	}
	var res changesResult
	err = c.call(ctx, MethodUpdate, updateParams{Table: table, ID: id, Patch: values}, &res)
	return res.Changes, err
}

func (c *Client) Delete(ctx context.Context, table db.Table, id int64) (int64, error) {
	var res changesResult
	err := c.call(ctx, MethodDelete, deleteParams{Table: table, ID: id}, &res)
	return res.Changes, err
}

// Query runs a raw SELECT on the bridge. Values come back JSON-decoded.
func (c *Client) Query(ctx context.Context, sql string, args ...interface{}) ([]db.Row, error) {
	var rows []db.Row
	err := c.call(ctx, MethodQuery, sqlParams{SQL: sql, Args: args}, &rows)
	return rows, err
}

// Run executes a raw statement on the bridge.
func (c *Client) Run(ctx context.Context, sql string, args ...interface{}) (db.RunResult, error) {
	var res db.RunResult
	err := c.call(ctx, MethodRun, sqlParams{SQL: sql, Args: args}, &res)
	return res, err
}

func (c *Client) CreateAdmin(ctx context.Context, u db.NewUser) (int64, error) {
	var res idResult
	err := c.call(ctx, MethodCreateAdmin, u, &res)
	return res.ID, err
}

func (c *Client) AuthenticateUser(ctx context.Context, email, password string) (*models.User, error) {
	var user *models.User
	if err := c.call(ctx, MethodLogin, credentials{Email: email, Password: password}, &user); err != nil {
		return nil, err
	}
	return user, nil
}

// Backup snapshots the database file and returns the backup path.
func (c *Client) Backup(ctx context.Context) (string, error) {
	var path string
	err := c.call(ctx, MethodBackup, nil, &path)
	return path, err
}

func (c *Client) Location(ctx context.Context) (Location, error) {
	var loc Location
	err := c.call(ctx, MethodLocation, nil, &loc)
	return loc, err
}

func (c *Client) ChangeLocation(ctx context.Context, dir string) (Location, error) {
	var loc Location
	err := c.call(ctx, MethodChangeLocation, dirParams{Dir: dir}, &loc)
	return loc, err
}

func (c *Client) Open(ctx context.Context, path string) (Location, error) {
	var loc Location
	err := c.call(ctx, MethodOpen, pathParams{Path: path}, &loc)
	return loc, err
}

func (c *Client) Eject(ctx context.Context) (Location, error) {
	var loc Location
	err := c.call(ctx, MethodEject, nil, &loc)
	return loc, err
}

func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	<-c.done
	return err
}
