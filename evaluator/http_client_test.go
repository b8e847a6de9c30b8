// evaluator/http_client_test.go
package evaluator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perm_errors "github.com/cloudgate-io/permcache/errors"
	"github.com/cloudgate-io/permcache/evaluator"
	logger "github.com/cloudgate-io/permcache/logging"
	"github.com/cloudgate-io/permcache/model"
)

func TestMain(m *testing.M) {
	logger.InitTestLogger()
	os.Exit(m.Run())
}

func TestHTTPClient_EvaluateAllow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/evaluate", r.URL.Path)
		var req model.CheckRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "t1", req.TenantID)
		assert.Equal(t, "u1", req.PrincipalID)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"allow":        true,
			"role_context": []string{"editor"},
			"evaluated_at": time.Now().UTC(),
		})
	}))
	defer server.Close()

	client := evaluator.NewHTTPClient(server.URL, time.Second)
	decision, err := client.Evaluate(context.Background(), model.CheckRequest{
		TenantID: "t1", PrincipalID: "u1", Permission: "read_doc",
	})
	require.NoError(t, err)
	assert.True(t, decision.Allowed())
	assert.Equal(t, []string{"editor"}, decision.RoleContext)
}

func TestHTTPClient_EvaluateDeny(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"allow":  false,
			"reason": "role lacks permission",
		})
	}))
	defer server.Close()

	client := evaluator.NewHTTPClient(server.URL, time.Second)
	decision, err := client.Evaluate(context.Background(), model.CheckRequest{
		TenantID: "t1", PrincipalID: "u1", Permission: "write_doc",
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed())
	assert.Equal(t, "role lacks permission", decision.Reason)
}

func TestHTTPClient_ServerErrorIsEvaluatorUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := evaluator.NewHTTPClient(server.URL, time.Second)
	_, err := client.Evaluate(context.Background(), model.CheckRequest{
		TenantID: "t1", PrincipalID: "u1", Permission: "p",
	})
	assert.ErrorIs(t, err, perm_errors.ErrEvaluatorUnavailable)
}

func TestHTTPClient_UnreachableIsEvaluatorUnavailable(t *testing.T) {
	client := evaluator.NewHTTPClient("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := client.Evaluate(context.Background(), model.CheckRequest{
		TenantID: "t1", PrincipalID: "u1", Permission: "p",
	})
	assert.ErrorIs(t, err, perm_errors.ErrEvaluatorUnavailable)
}

func TestHTTPClient_EvaluateBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/evaluate/batch", r.URL.Path)
		var body struct {
			Requests []model.CheckRequest `json:"requests"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		results := make([]map[string]interface{}, len(body.Requests))
		for i, req := range body.Requests {
			results[i] = map[string]interface{}{
				"allow": req.Permission != "forbidden",
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
	}))
	defer server.Close()

	client := evaluator.NewHTTPClient(server.URL, time.Second)
	decisions, err := client.EvaluateBatch(context.Background(), []model.CheckRequest{
		{TenantID: "t1", PrincipalID: "u1", Permission: "read_doc"},
		{TenantID: "t1", PrincipalID: "u1", Permission: "forbidden"},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.True(t, decisions[0].Allowed())
	assert.False(t, decisions[1].Allowed())
}

func TestHTTPClient_BatchCountMismatchRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{"allow": true}},
		})
	}))
	defer server.Close()

	client := evaluator.NewHTTPClient(server.URL, time.Second)
	_, err := client.EvaluateBatch(context.Background(), []model.CheckRequest{
		{TenantID: "t1", PrincipalID: "u1", Permission: "a"},
		{TenantID: "t1", PrincipalID: "u1", Permission: "b"},
	})
	assert.ErrorIs(t, err, perm_errors.ErrEvaluatorUnavailable)
}
