package provbatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// provisioningServer mimics a remote provisioning API: it records each
// operation request and answers with a JSON payload per path.
func provisioningServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	var calls sync.Map
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var req operationRequest
		assert.NoError(t, sonic.Unmarshal(body, &req))
		calls.Store(req.Op+"/"+req.ID, true)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/create", "/enable", "/delete":
			w.Write([]byte(`{"status":"ok"}`))
		case "/issue":
			w.Write([]byte(`{"credential":"sk-` + req.ID + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"unknown operation"}`))
		}
	}))
	return server, &calls
}

func TestHTTPProviderValidate(t *testing.T) {
	assert.ErrorIs(t, (&HTTPProvider{}).Validate(), ErrInvalidConfig)

	provider := &HTTPProvider{BaseURL: "http://localhost:9"}
	assert.NoError(t, provider.Validate())

	bad := &HTTPProvider{BaseURL: "http://localhost:9", Timeouts: HTTPTimeouts{Dial: -1}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestHTTPProviderOperations(t *testing.T) {
	server, calls := provisioningServer(t)
	defer server.Close()

	provider := &HTTPProvider{BaseURL: server.URL}
	require.NoError(t, provider.Validate())
	ctx := context.Background()

	output, err := provider.CreateResource(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"ok"}`, output)

	_, err = provider.EnableCapability(ctx, "res-1")
	require.NoError(t, err)

	output, err = provider.IssueCredential(ctx, "res-1")
	require.NoError(t, err)
	credential, err := JSONFieldExtractor("credential")(output)
	require.NoError(t, err)
	assert.Equal(t, "sk-res-1", credential)

	_, err = provider.DeleteResource(ctx, "res-1")
	require.NoError(t, err)

	for _, key := range []string{"create/res-1", "enable/res-1", "issue/res-1", "delete/res-1"} {
		_, ok := calls.Load(key)
		assert.True(t, ok, "expected a %s call", key)
	}
}

func TestHTTPProviderNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("PERMISSION_DENIED: caller forbidden"))
	}))
	defer server.Close()

	provider := &HTTPProvider{BaseURL: server.URL}
	require.NoError(t, provider.Validate())

	output, err := provider.CreateResource(context.Background(), "res-1")
	require.Error(t, err)
	// The body still reaches the classifier, which spots the fatal marker.
	assert.Equal(t, ClassFatal, DefaultClassifier().Classify(output, err))
}

func TestHTTPProviderUsedBeforeValidate(t *testing.T) {
	provider := &HTTPProvider{BaseURL: "http://localhost:9"}
	_, err := provider.CreateResource(context.Background(), "res-1")
	assert.Error(t, err)
}

func TestHTTPProviderEndToEndBatch(t *testing.T) {
	// The HTTP provider slots into a full provision batch.
	server, _ := provisioningServer(t)
	defer server.Close()

	provider := &HTTPProvider{BaseURL: server.URL}
	require.NoError(t, provider.Validate())

	batch, err := New(Config{
		Mode:        Provision,
		IDs:         sequentialIDs(4),
		Concurrency: 2,
		Retry:       fastRetry(2),
		Provider:    provider,
		OutputDir:   t.TempDir(),
	})
	require.NoError(t, err)

	summary, err := batch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
}
