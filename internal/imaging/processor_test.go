package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/dnscache"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/platform/blob"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newImageServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not an image"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProcessor(t *testing.T, store blob.Store, cfg Config) *Processor {
	t.Helper()
	if store == nil {
		var err error
		store, err = blob.NewLocalStoreWithFs(afero.NewMemMapFs(), "/blobs", testLogger())
		require.NoError(t, err)
	}
	p, err := NewProcessor(nil, NewJPEGTransformer(16, 50), store, cfg, testLogger())
	require.NoError(t, err)
	return p
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("disk full")
}
func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, blob.ErrNotFound }
func (failingStore) Delete(context.Context, string) error        { return nil }

func TestProcessor_Success(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, pngBytes(t, 64, 32))
	store, err := blob.NewLocalStoreWithFs(afero.NewMemMapFs(), "/blobs", testLogger())
	require.NoError(t, err)
	p := newTestProcessor(t, store, Config{})

	ref, err := p.Process(context.Background(), "slot-key", srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, "/blobs/outputs/slot-key.jpg", ref)

	stored, err := store.Get(context.Background(), "outputs/slot-key.jpg")
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(stored))
	require.NoError(t, err, "output must be a jpeg")
	assert.Equal(t, 16, decoded.Bounds().Dx())
	assert.Equal(t, 8, decoded.Bounds().Dy())
}

func TestProcessor_SameKeyOverwrites(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, pngBytes(t, 8, 8))
	p := newTestProcessor(t, nil, Config{})

	ref1, err := p.Process(context.Background(), "k", srv.URL+"/ok.png")
	require.NoError(t, err)
	ref2, err := p.Process(context.Background(), "k", srv.URL+"/ok.png")
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)
}

func TestProcessor_FailureKinds(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, pngBytes(t, 8, 8))

	testCases := []struct {
		name  string
		url   string
		store blob.Store
		cfg   Config
		kind  domain.ErrorKind
	}{
		{name: "empty url", url: "", kind: domain.ErrorKindInvalidURL},
		{name: "relative url", url: "/images/1.png", kind: domain.ErrorKindInvalidURL},
		{name: "unsupported scheme", url: "ftp://example.com/1.png", kind: domain.ErrorKindInvalidURL},
		{name: "not found", url: srv.URL + "/missing.png", kind: domain.ErrorKindFetch},
		{name: "not an image", url: srv.URL + "/garbage", kind: domain.ErrorKindDecode},
		{name: "too large", url: srv.URL + "/ok.png", cfg: Config{MaxImageBytes: 10}, kind: domain.ErrorKindFetch},
		{name: "timeout", url: srv.URL + "/slow", cfg: Config{FetchTimeout: 50 * time.Millisecond}, kind: domain.ErrorKindFetch},
		{name: "storage failure", url: srv.URL + "/ok.png", store: failingStore{}, kind: domain.ErrorKindStorage},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := newTestProcessor(t, tc.store, tc.cfg)
			ref, err := p.Process(context.Background(), "k", tc.url)
			require.Error(t, err)
			assert.Empty(t, ref)

			var imgErr *Error
			require.True(t, errors.As(err, &imgErr), "expected *Error, got %T", err)
			assert.Equal(t, tc.kind, imgErr.Kind)
			assert.Equal(t, tc.url, imgErr.URL)
			assert.Equal(t, tc.kind, KindOf(err))
		})
	}
}

type panickingTransformer struct{}

func (panickingTransformer) Transform([]byte) ([]byte, error) {
	panic("corrupt header")
}

func TestProcessor_TransformPanicIsDecodeFailure(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, pngBytes(t, 8, 8))
	store, err := blob.NewLocalStoreWithFs(afero.NewMemMapFs(), "/blobs", testLogger())
	require.NoError(t, err)
	p, err := NewProcessor(nil, panickingTransformer{}, store, Config{}, testLogger())
	require.NoError(t, err)

	_, err = p.Process(context.Background(), "k", srv.URL+"/ok.png")
	require.Error(t, err)
	assert.Equal(t, domain.ErrorKindDecode, KindOf(err))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestProcessor_RateLimitHonoursContext(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, pngBytes(t, 8, 8))
	p := newTestProcessor(t, nil, Config{RateLimit: 0.001, RateBurst: 1})

	// first call uses the burst token
	_, err := p.Process(context.Background(), "a", srv.URL+"/ok.png")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Process(ctx, "b", srv.URL+"/ok.png")
	assert.Equal(t, domain.ErrorKindFetch, KindOf(err))
}

func TestNewProcessor_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewProcessor(nil, nil, failingStore{}, Config{}, nil)
	assert.Error(t, err)

	_, err = NewProcessor(nil, NewJPEGTransformer(0, 0), nil, Config{}, nil)
	assert.Error(t, err)
}

func TestKindOf_ForeignError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, domain.ErrorKindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, domain.ErrorKindUnknown, KindOf(nil))
}

func TestNewHTTPClient_WithResolver(t *testing.T) {
	t.Parallel()

	srv := newImageServer(t, pngBytes(t, 4, 4))
	client := NewHTTPClient(&dnscache.Resolver{})

	resp, err := client.Get(srv.URL + "/ok.png")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
