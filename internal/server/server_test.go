package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-thumbnailer/internal/metrics"
	"photo-thumbnailer/internal/models"
	"photo-thumbnailer/internal/objectstore"
	"photo-thumbnailer/internal/processor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubCodec struct {
	failFormat string
}

func (s stubCodec) Transform(_ []byte, width int, f models.Format) ([]byte, error) {
	if f.Name == s.failFormat {
		return nil, errors.New("unsupported")
	}
	return []byte(f.Name), nil
}

// countingStore records how often the store was touched.
type countingStore struct {
	*objectstore.MemoryStore
	calls int
}

func (c *countingStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	c.calls++
	return c.MemoryStore.Download(ctx, bucket, key)
}

type memMetadata struct {
	rows map[string]*models.ImageRecord
}

func (m *memMetadata) GetImageByPath(_ context.Context, path string) (*models.ImageRecord, error) {
	img, ok := m.rows[path]
	if !ok {
		return nil, models.ErrNotFound
	}
	return img, nil
}

func (m *memMetadata) SaveImage(_ context.Context, img *models.ImageRecord) error {
	img.ID = int64(len(m.rows) + 1)
	m.rows[img.Path] = img
	return nil
}

func (m *memMetadata) UpdateImage(_ context.Context, img *models.ImageRecord) error {
	m.rows[img.Path] = img
	return nil
}

func (m *memMetadata) UpdateGeneratedPaths(context.Context, string, models.GeneratedPaths) error {
	return models.ErrNotFound
}

func (m *memMetadata) DeleteImage(context.Context, int64) error { return nil }

func (m *memMetadata) DeleteImageByPath(context.Context, string) error { return nil }

type stubEnqueuer struct {
	bucket, file string
}

func (s *stubEnqueuer) Enqueue(_ context.Context, bucket, file string) (string, error) {
	s.bucket, s.file = bucket, file
	return "job-1", nil
}

type testEnv struct {
	srv   *Server
	store *countingStore
	queue *stubEnqueuer
}

func newTestEnv(t *testing.T, meta processor.MetadataStore, codec processor.Transformer) *testEnv {
	t.Helper()

	cfg := models.DefaultConfig()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	store := &countingStore{MemoryStore: objectstore.NewMemoryStore("http://store/")}
	deps := processor.Deps{
		Store:          store,
		Codec:          codec,
		Metrics:        m,
		Log:            log,
		OriginalBucket: cfg.OriginalBucket,
		DerivedBucket:  cfg.DerivedBucket,
	}
	if meta != nil {
		deps.Metadata = meta
	}
	q := &stubEnqueuer{}
	srv := NewServer(cfg, processor.New(deps), q, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log)
	return &testEnv{srv: srv, store: store, queue: q}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGenerateThumbnailsMissingFields(t *testing.T) {
	env := newTestEnv(t, nil, stubCodec{})

	for _, body := range []string{`{}`, `{"bucket":"photos-original"}`, `{"file":"a.png"}`, `not json`} {
		w := env.do(http.MethodPost, "/generate-thumbnails", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, false, decode(t, w)["ok"])
	}
	assert.Zero(t, env.store.calls)
}

func TestGenerateThumbnailsMissingOriginal(t *testing.T) {
	env := newTestEnv(t, nil, stubCodec{})

	w := env.do(http.MethodPost, "/generate-thumbnails", `{"bucket":"photos-original","file":"nope.png"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	out := decode(t, w)
	assert.Equal(t, false, out["ok"])
	assert.NotEmpty(t, out["error"])
	assert.Empty(t, env.store.Keys("photos-derived"))
}

func TestGenerateThumbnailsPartialFailure(t *testing.T) {
	env := newTestEnv(t, nil, stubCodec{failFormat: models.FormatAVIF})
	require.NoError(t, env.store.Upload(context.Background(), "photos-original", "u/a.png", []byte("img"), "image/png"))

	w := env.do(http.MethodPost, "/generate-thumbnails", `{"bucket":"photos-original","path":"/u/a.png"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		OK             bool                          `json:"ok"`
		GeneratedPaths map[string]map[string]*string `json:"generatedPaths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.Len(t, resp.GeneratedPaths, 3)
	for size, inner := range resp.GeneratedPaths {
		require.Contains(t, inner, "avif")
		assert.Nil(t, inner["avif"])
		require.NotNil(t, inner["webp"])
		assert.Equal(t, size+"/u/a.webp", *inner["webp"])
	}
}

func TestDeleteJobAcceptsNestedJobAndDeleteMethod(t *testing.T) {
	env := newTestEnv(t, nil, stubCodec{})
	ctx := context.Background()
	require.NoError(t, env.store.Upload(ctx, "photos-original", "a.png", []byte("img"), "image/png"))
	require.NoError(t, env.store.Upload(ctx, "photos-derived", "small/a.webp", []byte("d"), "image/webp"))

	body := `{"job":{"path":"a.png","derived_paths":{"small":{"webp":"small/a.webp","avif":null}}}}`
	w := env.do(http.MethodDelete, "/delete-job", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])
	assert.Empty(t, env.store.Keys("photos-original"))
	assert.Empty(t, env.store.Keys("photos-derived"))

	w = env.do(http.MethodPost, "/delete-job", `{"derived_paths":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateUploadURL(t *testing.T) {
	env := newTestEnv(t, nil, stubCodec{})

	w := env.do(http.MethodPost, "/generate-upload-url", `{"fileName":"/users/u1/pic.png"}`)
	require.Equal(t, http.StatusOK, w.Code)
	out := decode(t, w)
	assert.Equal(t, "users/u1/pic.png", out["path"])
	assert.Contains(t, out["signedUrl"], "http://store/photos-original/users/u1/pic.png")
	assert.NotEmpty(t, out["token"])

	w = env.do(http.MethodPost, "/generate-upload-url", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	out = decode(t, w)
	assert.NotContains(t, out, "ok")
	assert.NotEmpty(t, out["error"])
}

func TestRecordUpload(t *testing.T) {
	meta := &memMetadata{rows: map[string]*models.ImageRecord{}}
	env := newTestEnv(t, meta, stubCodec{})

	w := env.do(http.MethodPost, "/record-upload", `{"path":"a.png","title":"Sunset","category":"travel"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ok"])
	require.Contains(t, meta.rows, "a.png")
	assert.Equal(t, "travel", meta.rows["a.png"].Category)

	w = env.do(http.MethodPost, "/record-upload", `{"path":"a.png","title":"Sunrise"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, meta.rows, 1)
	assert.Equal(t, "Sunrise", meta.rows["a.png"].Title)

	w = env.do(http.MethodPost, "/record-upload", `{"path":"a.png"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordUploadWithoutMetadata(t *testing.T) {
	env := newTestEnv(t, nil, stubCodec{})

	w := env.do(http.MethodPost, "/record-upload", `{"path":"a.png","title":"Sunset"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestEnqueueThumbnails(t *testing.T) {
	env := newTestEnv(t, nil, stubCodec{})

	w := env.do(http.MethodPost, "/enqueue-thumbnails", `{"bucket":"photos-original","file":"a.png"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	out := decode(t, w)
	assert.Equal(t, "job-1", out["jobId"])
	assert.Equal(t, "a.png", env.queue.file)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil, stubCodec{})

	w := env.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	env.do(http.MethodPost, "/generate-thumbnails", `{"bucket":"b","file":"missing.png"}`)
	w = env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "thumbnailer_original_fetch_failures_total 1")
}

func TestRequestIDIsPropagated(t *testing.T) {
	env := newTestEnv(t, nil, stubCodec{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}
