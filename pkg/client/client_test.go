package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obz-ai/obz/pkg/metrics"
	"github.com/obz-ai/obz/pkg/projector"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a client at an httptest server serving handler.
func newTestClient(t *testing.T, handler http.HandlerFunc, breaker BreakerConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		API:      APIConfig{BaseURL: srv.URL + "/api", Endpoints: DefaultEndpoints()},
		APIToken: "test-token",
		Timeout:  5 * time.Second,
		Breaker:  breaker,
	})
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestAPIConfigURL(t *testing.T) {
	cfg := APIConfig{BaseURL: "http://127.0.0.1:8000/api/", Endpoints: DefaultEndpoints()}

	url, err := cfg.URL(EndpointLog)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/api/python_client/logs/log/", url)

	_, err = cfg.URL("XYZ")
	assert.ErrorIs(t, err, ErrUnknownEndpoint)

	assert.Equal(t, []string{
		EndpointAuth,
		EndpointCreateRefEntry,
		EndpointInitProject,
		EndpointLog,
		EndpointUploadImage,
		EndpointUploadRefFeatures,
	}, cfg.Names())
}

func TestDefaultAPIConfigFromEnv(t *testing.T) {
	t.Setenv("OBZ_BACKEND_URL", "http://localhost:8000/api")
	assert.Equal(t, "http://localhost:8000/api", DefaultAPIConfig().BaseURL)

	t.Setenv("OBZ_BACKEND_URL", "")
	assert.Equal(t, DefaultBaseURL, DefaultAPIConfig().BaseURL)
}

func TestVerifyAPIToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/python_client/auth/verify-api-token/", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		body := decodeBody(t, r)
		valid := body["api_token"] == "test-token"
		json.NewEncoder(w).Encode(TokenInfo{Valid: valid, UserID: "u-1"})
	}, BreakerConfig{})

	info, err := c.VerifyAPIToken(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Valid)
	assert.Equal(t, "u-1", info.UserID)
}

func TestVerifyAPITokenRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(TokenInfo{Valid: false, Message: "expired"})
	}, BreakerConfig{})

	info, err := c.VerifyAPIToken(context.Background())
	assert.ErrorIs(t, err, ErrInvalidToken)
	require.NotNil(t, info)
	assert.Equal(t, "expired", info.Message)

	_, err = New(Config{API: c.API()}).VerifyAPIToken(context.Background())
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestInitProject(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/python_client/project/init-project/", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, "mnist", body["project_name"])
		json.NewEncoder(w).Encode(Project{ID: "p-42", Name: "mnist", Created: true})
	}, BreakerConfig{})

	project, err := c.InitProject(context.Background(), InitProjectRequest{Name: "mnist"})
	require.NoError(t, err)
	assert.Equal(t, "p-42", project.ID)
	assert.True(t, project.Created)

	_, err = c.InitProject(context.Background(), InitProjectRequest{})
	assert.Error(t, err)
}

func TestAPIErrorMapping(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"detail": "Invalid token."}`)
	}, BreakerConfig{})

	_, err := c.InitProject(context.Background(), InitProjectRequest{Name: "x"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Invalid token.", apiErr.Message)
}

func TestRefEntryAndFeatures(t *testing.T) {
	var uploaded map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/python_client/ref_logs/create_ref_entry/":
			body := decodeBody(t, r)
			assert.Equal(t, "p-1", body["project_id"])
			assert.EqualValues(t, 2, body["samples"])
			json.NewEncoder(w).Encode(RefEntry{ID: "ref-9"})
		case "/api/python_client/ref_logs/upload_ref_features/":
			uploaded = decodeBody(t, r)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, BreakerConfig{})

	ctx := context.Background()
	entry, err := c.CreateRefEntry(ctx, RefEntryRequest{ProjectID: "p-1", Name: "train", Samples: 2, FeatureDim: 3})
	require.NoError(t, err)
	assert.Equal(t, "ref-9", entry.ID)

	err = c.UploadRefFeatures(ctx, RefFeatures{
		RefEntryID: entry.ID,
		Features:   [][]float32{{0.5, -1, 2}, {0.25, 0, 1}},
		Precision:  Float16,
		PCACoords:  []projector.Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
	})
	require.NoError(t, err)

	require.NotNil(t, uploaded)
	assert.Equal(t, "ref-9", uploaded["ref_entry_id"])
	assert.Equal(t, "float16", uploaded["precision"])
	assert.EqualValues(t, 3, uploaded["dims"])
	assert.NotContains(t, uploaded, "umap_coords")

	rows := uploaded["features"].([]interface{})
	require.Len(t, rows, 2)
	decoded, err := DecodeFloat16Row(rows[0].(string))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2}, decoded)

	coords := uploaded["pca_coords"].([]interface{})
	assert.Equal(t, map[string]interface{}{"x_coor": 1.0, "y_coor": 2.0}, coords[0])
}

func TestEncodeFeaturesValidation(t *testing.T) {
	_, err := encodeFeatures(nil, Float32)
	assert.Error(t, err)

	_, err = encodeFeatures([][]float32{{1, 2}, {3}}, Float32)
	assert.Error(t, err)

	_, err = encodeFeatures([][]float32{{1}}, "int8")
	assert.Error(t, err)

	enc, err := encodeFeatures([][]float32{{1, 2}}, "")
	require.NoError(t, err)
	assert.Equal(t, Float32, enc.Precision)
}

func TestEncodeFeaturesFloat16Range(t *testing.T) {
	_, err := encodeFeatures([][]float32{{1, 2, 3}, {70000, 1e-8, 1}}, Float16)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1 column 0")

	_, err = encodeFeatures([][]float32{{-70000}}, Float16)
	assert.Error(t, err)

	// Float32 keeps values a half float cannot hold.
	_, err = encodeFeatures([][]float32{{70000}}, Float32)
	assert.NoError(t, err)

	enc, err := encodeFeatures([][]float32{{65504, -0.5, 1e-8}}, Float16)
	require.NoError(t, err)
	rows := enc.Rows.([]string)
	row, err := DecodeFloat16Row(rows[0])
	require.NoError(t, err)
	assert.Equal(t, []float32{65504, -0.5, 0}, row)
}

func TestUploadImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/python_client/logs/upload_image/", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "p-1", r.FormValue("project_id"))
		assert.JSONEq(t, `{"label":"cat"}`, r.FormValue("metadata"))

		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		assert.Equal(t, "cat.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		content, _ := io.ReadAll(file)
		assert.Equal(t, png, content)

		json.NewEncoder(w).Encode(UploadResult{ID: "img-1"})
	}, BreakerConfig{})

	res, err := c.UploadImage(context.Background(), ImageUpload{
		ProjectID: "p-1",
		Filename:  "cat.png",
		Content:   png,
		Metadata:  map[string]string{"label": "cat"},
	})
	require.NoError(t, err)
	assert.Equal(t, "img-1", res.ID)

	_, err = c.UploadImage(context.Background(), ImageUpload{ProjectID: "p-1"})
	assert.Error(t, err)
}

func TestLogFillsIDAndTimestamp(t *testing.T) {
	var got LogEntry
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&got)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}, BreakerConfig{})

	id, err := c.Log(context.Background(), LogEntry{
		ProjectID: "p-1",
		Step:      3,
		Metrics:   map[string]float64{"loss": 0.25},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, got.ID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, 0.25, got.Metrics["loss"])
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.5,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := c.Log(ctx, LogEntry{ProjectID: "p"})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
	}

	_, err := c.Log(ctx, LogEntry{ProjectID: "p"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), hits.Load(), "open breaker must not reach the backend")
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}, BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 0.1,
	})

	for i := 0; i < 5; i++ {
		_, err := c.Log(context.Background(), LogEntry{ProjectID: "p"})
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "attempt %d: %v", i, err)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	}
}

func TestCircuitBreakerIgnoresUnsentRequests(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusCreated)
	}, BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 0.1,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.do(ctx, request{endpoint: "missing", method: http.MethodGet})
		assert.ErrorIs(t, err, ErrUnknownEndpoint)

		_, err = c.do(ctx, request{endpoint: EndpointLog, method: "BAD METHOD"})
		assert.ErrorIs(t, err, errBuildRequest)
	}

	_, err := c.Log(ctx, LogEntry{ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRequestMetrics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}, BreakerConfig{})

	counter := metrics.ClientRequestsTotal.WithLabelValues(EndpointLog, "418")
	before := testutil.ToFloat64(counter)
	_, _ = c.Log(context.Background(), LogEntry{ProjectID: "p"})
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, DefaultBreakerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Log(ctx, LogEntry{ProjectID: "p"})
	assert.ErrorIs(t, err, context.Canceled)
}
