package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func fakeDaemon(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
		handler, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"no route"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"pending", "sync", "clear", "print-settings"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	addr := cmd.PersistentFlags().Lookup("addr")
	require.NotNil(t, addr)
	assert.Equal(t, "http://127.0.0.1:8787", addr.DefValue)
}

func TestRejectsUnknownFormat(t *testing.T) {
	_, err := runCLI(t, "pending", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestPendingPrintsTable(t *testing.T) {
	srv, _ := fakeDaemon(t, map[string]func(http.ResponseWriter){
		"GET /v1/operations": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"data":[{"id":"7d0c1c47-8a8e-4a3d-9a39-1f7ed6a3b1a2","action":"create","resource":"orders","record_id":"o-1","payload":{},"created_at":"2026-01-01T00:00:00Z","attempt_count":2,"last_error":"timeout"}],"meta":{"count":1}}`))
		},
	})

	out, err := runCLI(t, "pending", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "1 pending operation(s)")
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "timeout")
}

func TestPendingJSON(t *testing.T) {
	srv, _ := fakeDaemon(t, map[string]func(http.ResponseWriter){
		"GET /v1/operations": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"data":[],"meta":{"count":0}}`))
		},
	})

	out, err := runCLI(t, "pending", "--addr", srv.URL, "--format", "json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.EqualValues(t, 0, decoded["count"])
}

func TestSyncReportsCounts(t *testing.T) {
	srv, seen := fakeDaemon(t, map[string]func(http.ResponseWriter){
		"POST /v1/sync": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"data":{"succeeded":3,"failed":1,"deferred":0,"state":"idle","failures":[{"operation_id":"abc","action":"update","resource":"tables","error":"boom"}]}}`))
		},
	})

	out, err := runCLI(t, "sync", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "3 succeeded, 1 failed, 0 deferred")
	assert.Contains(t, out, "boom")
	require.Len(t, *seen, 1)
}

func TestClearRequiresYes(t *testing.T) {
	srv, seen := fakeDaemon(t, nil)

	_, err := runCLI(t, "clear", "--addr", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
	assert.Empty(t, *seen)
}

func TestClearSendsConfirmation(t *testing.T) {
	srv, seen := fakeDaemon(t, map[string]func(http.ResponseWriter){
		"DELETE /v1/operations": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"data":{"removed":4}}`))
		},
	})

	out, err := runCLI(t, "clear", "--yes", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "removed 4 operation(s)")
	require.Len(t, *seen, 1)
	assert.Equal(t, "confirm=true", (*seen)[0].Query)
}

func TestPrintSettingsUpdatesOnlyChangedFlags(t *testing.T) {
	srv, seen := fakeDaemon(t, map[string]func(http.ResponseWriter){
		"GET /v1/print/settings": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"data":{"is_print_server":true,"use_print_queue":false,"route":"direct"}}`))
		},
		"PUT /v1/print/settings": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"data":{"is_print_server":true,"use_print_queue":true,"route":"direct"}}`))
		},
	})

	out, err := runCLI(t, "print-settings", "--queue", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "use print queue: true")

	require.Len(t, *seen, 2)
	var body map[string]bool
	require.NoError(t, json.Unmarshal([]byte((*seen)[1].Body), &body))
	assert.True(t, body["is_print_server"])
	assert.True(t, body["use_print_queue"])
}

func TestPrintSettingsReadOnly(t *testing.T) {
	srv, seen := fakeDaemon(t, map[string]func(http.ResponseWriter){
		"GET /v1/print/settings": func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"data":{"is_print_server":false,"use_print_queue":true,"route":"queued"}}`))
		},
	})

	out, err := runCLI(t, "print-settings", "--addr", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "route: queued")
	assert.Len(t, *seen, 1)
}

func TestAPIErrorSurfaced(t *testing.T) {
	srv, _ := fakeDaemon(t, map[string]func(http.ResponseWriter){
		"POST /v1/sync": func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"code":"DEPENDENCY","message":"hosted store offline"}}`))
		},
	})

	_, err := runCLI(t, "sync", "--addr", srv.URL)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Equal(t, "DEPENDENCY", apiErr.Code)
}
