package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/mutation"
)

func newTestClient(serverURL string) *Client {
	c := NewClient(serverURL, "test-token", 5*time.Second, loggy.NewNoopLogger())
	c.SetClientID("cli-01HV4Q2E8Y0000000000000001")
	return c
}

func TestSubmitCreate(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotClient string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotClient = r.Header.Get("X-Driftq-Client")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"n-1","resource":"note","data":{"id":"n-1","title":"hello","rev":1},"updated_at":"2024-06-01T10:00:00Z"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	m := mutation.New("note", mutation.OpCreate, "n-1", json.RawMessage(`{"id":"n-1","title":"hello"}`))

	record, err := client.Submit(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/resources/note", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Contains(t, gotClient, "cli-")
	assert.Equal(t, "hello", gotBody["title"])

	assert.Equal(t, "n-1", record.ID)
	assert.Equal(t, "note", record.Resource)
	assert.NotEmpty(t, record.Data)
}

func TestSubmitUpdate(t *testing.T) {
	var gotMethod, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"id":"n-1","resource":"note"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	m := mutation.New("note", mutation.OpUpdate, "n-1", json.RawMessage(`{"title":"renamed"}`))

	_, err := client.Submit(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/api/resources/note/n-1", gotPath)
}

func TestSubmitDeleteEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	m := mutation.New("note", mutation.OpDelete, "n-1", nil)

	record, err := client.Submit(context.Background(), m)
	require.NoError(t, err)

	// Empty delete responses synthesize the record from the mutation
	assert.Equal(t, "n-1", record.ID)
	assert.Equal(t, "note", record.Resource)
}

func TestSubmitAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"title is required","error":"validation_failed"}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	m := mutation.New("note", mutation.OpCreate, "n-1", json.RawMessage(`{}`))

	_, err := client.Submit(context.Background(), m)
	require.Error(t, err)

	var apiErr APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "title is required", apiErr.Message)
	assert.Equal(t, "validation_failed", apiErr.ErrorCode)
}

func TestSubmitUndecodableError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html>bad gateway</html>")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	m := mutation.New("note", mutation.OpCreate, "n-1", json.RawMessage(`{}`))

	_, err := client.Submit(context.Background(), m)
	require.Error(t, err)

	// Status code survives even when the body is not JSON
	var apiErr APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestPing(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	assert.NoError(t, client.Ping(context.Background()))

	healthy = false
	assert.Error(t, client.Ping(context.Background()))
}

func TestVerifyToken(t *testing.T) {
	validToken := "valid-token"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer "+validToken {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.SetToken(validToken)

	ok, err := client.VerifyToken(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	client.SetToken("wrong")
	ok, err = client.VerifyToken(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want mutation.FailureKind
	}{
		{"nil error", nil, mutation.FailureKind("")},
		{"conflict", APIError{StatusCode: http.StatusConflict}, mutation.FailureConflict},
		{"validation 400", APIError{StatusCode: http.StatusBadRequest}, mutation.FailureValidation},
		{"validation 422", APIError{StatusCode: http.StatusUnprocessableEntity}, mutation.FailureValidation},
		{"auth failures are terminal", APIError{StatusCode: http.StatusUnauthorized}, mutation.FailureValidation},
		{"request timeout", APIError{StatusCode: http.StatusRequestTimeout}, mutation.FailureTransient},
		{"rate limited", APIError{StatusCode: http.StatusTooManyRequests}, mutation.FailureTransient},
		{"server error", APIError{StatusCode: http.StatusInternalServerError}, mutation.FailureTransient},
		{"bad gateway", APIError{StatusCode: http.StatusBadGateway}, mutation.FailureTransient},
		{"transport error", errors.New("dial tcp: connection refused"), mutation.FailureTransient},
		{"wrapped api error", fmt.Errorf("submit: %w", APIError{StatusCode: http.StatusConflict}), mutation.FailureConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestSubmitTransportErrorClassifiesTransient(t *testing.T) {
	// Point at a closed server to force a connection error
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newTestClient(server.URL)
	m := mutation.New("note", mutation.OpCreate, "n-1", json.RawMessage(`{}`))

	_, err := client.Submit(context.Background(), m)
	require.Error(t, err)
	assert.Equal(t, mutation.FailureTransient, Classify(err))
}
