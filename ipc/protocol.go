// ABOUTME: Wire types for the IPC bridge: requests, envelopes and method parameters
// ABOUTME: Errors cross the wire as a message plus a short code that maps back to sentinels
package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harperreed/crmdesk/db"
	"github.com/harperreed/crmdesk/store"
)

// Method names understood by the bridge.
const (
	MethodGetAll         = "db:getAll"
	MethodInsert         = "db:insert"
	MethodUpdate         = "db:update"
	MethodDelete         = "db:delete"
	MethodQuery          = "db:query"
	MethodRun            = "db:run"
	MethodBackup         = "db:backup"
	MethodLocation       = "db:location"
	MethodChangeLocation = "db:changeLocation"
	MethodOpen           = "db:open"
	MethodEject          = "db:eject"
	MethodCreateAdmin    = "auth:createAdmin"
	MethodLogin          = "auth:login"
)

// ErrClosed is returned by client calls after the connection is gone.
var ErrClosed = errors.New("ipc: connection closed")

type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Envelope struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

type tableParams struct {
	Table db.Table `json:"table"`
}

type insertParams struct {
	Table db.Table `json:"table"`
	Row   db.Row   `json:"row"`
}

type updateParams struct {
	Table db.Table `json:"table"`
	ID    int64    `json:"id"`
	Patch db.Row   `json:"patch"`
}

type deleteParams struct {
	Table db.Table `json:"table"`
	ID    int64    `json:"id"`
}

type sqlParams struct {
	SQL  string        `json:"sql"`
	Args []interface{} `json:"args,omitempty"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type dirParams struct {
	Dir string `json:"dir"`
}

type pathParams struct {
	Path string `json:"path"`
}

// Location describes the database file the bridge has open.
type Location struct {
	Path string `json:"path"`
	Dir  string `json:"dir"`
}

type idResult struct {
	ID int64 `json:"id"`
}

type changesResult struct {
	Changes int64 `json:"changes"`
}

// decodeJSON decodes keeping numbers as json.Number so ids stay integers.
func decodeJSON(data []byte, v interface{}) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// plainArgs converts decoded JSON numbers into values SQL drivers accept.
func plainArgs(args []interface{}) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		if n, ok := a.(json.Number); ok {
			if v, err := n.Int64(); err == nil {
				out[i] = v
				continue
			}
			if v, err := n.Float64(); err == nil {
				out[i] = v
				continue
			}
		}
		out[i] = a
	}
	return out
}

var errorCodes = []struct {
	code string
	err  error
}{
	{"unknown_table", db.ErrUnknownTable},
	{"unknown_column", db.ErrUnknownColumn},
	{"invalid_value", db.ErrInvalidValue},
	{"constraint", db.ErrConstraint},
	{"not_found", store.ErrNotFound},
	{"backup_unsupported", db.ErrBackupUnsupported},
}

func codeFor(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// RemoteError is an operation failure reported by the bridge.
type RemoteError struct {
	Method  string
	Message string
	Code    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

func (e *RemoteError) Unwrap() error {
	for _, c := range errorCodes {
		if c.code == e.Code {
			return c.err
		}
	}
	return nil
}
