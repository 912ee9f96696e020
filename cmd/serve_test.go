package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/appraisal-precheck/internal/config"
	"github.com/sells-group/appraisal-precheck/internal/model"
	"github.com/sells-group/appraisal-precheck/internal/pipeline"
	"github.com/sells-group/appraisal-precheck/internal/retrieval"
	"github.com/sells-group/appraisal-precheck/internal/risk"
	"github.com/sells-group/appraisal-precheck/internal/store"
	"github.com/sells-group/appraisal-precheck/internal/vision"
	"github.com/sells-group/appraisal-precheck/pkg/claude"
)

// stubClient answers vision requests with a fixed valid extraction and
// text-only requests with an empty risk scan.
type stubClient struct{}

func (stubClient) CreateMessage(_ context.Context, req claude.MessageRequest) (*claude.MessageResponse, error) {
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.ImageURL != "" {
				return &claude.MessageResponse{Text: `{
					"photo_id": "p1",
					"extraction": {
						"photo_angle": {"angle": "front", "confidence": 0.9},
						"odometer": {"value": null, "confidence": 0},
						"vin": {"text": "", "confidence": 0},
						"damage": []
					}
				}`}, nil
			}
		}
	}
	return &claude.MessageResponse{Text: `{"flags": [], "assumptions": [], "unknowns": []}`}, nil
}

func newTestEnv(t *testing.T) *engineEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	client := stubClient{}
	eng := pipeline.New(st,
		vision.NewValidator(client, "test-vision", 1024),
		risk.NewScanner(client, "test-risk", 1024),
		retrieval.NewStoreRetriever(st, retrieval.Config{}),
		pipeline.Config{},
	)
	return &engineEnv{Store: st, Engine: eng}
}

func newTestServer(t *testing.T) (*httptest.Server, *engineEnv) {
	t.Helper()
	env := newTestEnv(t)
	srv := httptest.NewServer(newRouter(context.Background(), env))
	t.Cleanup(srv.Close)
	return srv, env
}

const evidenceBody = `{
	"photos": [{"photo_id": "p1", "url": "https://photos.test/p1.jpg"}],
	"metadata": {"make": "Toyota", "model": "Camry"},
	"notes": "Clean overall."
}`

func TestServeHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeMetricsExposed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeRunRequiresUUIDKey(t *testing.T) {
	srv, _ := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/appraisals/appr-1/run", strings.NewReader(evidenceBody))
	req.Header.Set("Idempotency-Key", "not-a-uuid")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeRunAcceptedAndCompletes(t *testing.T) {
	srv, env := newTestServer(t)
	key := uuid.NewString()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/appraisals/appr-1/run", strings.NewReader(evidenceBody))
	req.Header.Set("Idempotency-Key", key)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted struct {
		RunID   string `json:"run_id"`
		Created bool   `json:"created"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	assert.True(t, accepted.Created)
	require.NotEmpty(t, accepted.RunID)

	// The run executes asynchronously; wait for it to finish.
	require.Eventually(t, func() bool {
		run, getErr := env.Store.GetRun(context.Background(), accepted.RunID)
		return getErr == nil && run.Status.Terminal()
	}, 5*time.Second, 50*time.Millisecond)

	run, err := env.Store.GetRun(context.Background(), accepted.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)

	// Replaying the same key does not start a second run.
	req2, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/appraisals/appr-1/run", strings.NewReader(evidenceBody))
	req2.Header.Set("Idempotency-Key", key)
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusAccepted, resp2.StatusCode)

	var replay struct {
		RunID   string `json:"run_id"`
		Created bool   `json:"created"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&replay))
	assert.False(t, replay.Created)
	assert.Equal(t, accepted.RunID, replay.RunID)
}

func TestServeGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/runs/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeLedgerDownload(t *testing.T) {
	srv, env := newTestServer(t)
	ctx := context.Background()

	run, _, err := env.Engine.Register(ctx, "appr-1", uuid.NewString())
	require.NoError(t, err)
	_, err = env.Engine.Run(ctx, run.ID, &model.EvidenceInputs{
		AppraisalID: "appr-1",
		Photos:      []model.PhotoInput{{PhotoID: "p1", URL: "https://photos.test/p1.jpg"}},
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/appraisals/appr-1/ledger?download=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "appr-1-ledger.json")

	var body struct {
		Events []model.LedgerEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Events)
}

func TestInitStoreUnsupportedDriver(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })
	cfg = &config.Config{Store: config.StoreConfig{Driver: "nosql"}}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}
