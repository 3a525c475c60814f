package usecase

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/hfclient"
	"github.com/example/ai-detect/internal/imageprocessor"
	"github.com/example/ai-detect/internal/model"
	"github.com/example/ai-detect/internal/repository"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type imageServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newImageServer(t *testing.T) *imageServer {
	t.Helper()
	data := pngBytes(t, 40, 30)
	s := &imageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

// newGatedImageServer holds every image request until the returned release
// func is called.
func newGatedImageServer(t *testing.T) (*imageServer, func()) {
	t.Helper()
	data := pngBytes(t, 40, 30)
	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }

	s := &imageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(func() {
		release()
		s.Close()
	})
	return s, release
}

type stubZeroShot struct {
	mu     sync.Mutex
	key    string
	body   string
	err    error
	calls  int
	labels []string
	uris   []string
}

func (s *stubZeroShot) ZeroShot(ctx context.Context, dataURI string, labels []string) (*hfclient.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.labels = labels
	s.uris = append(s.uris, dataURI)
	if s.err != nil {
		return nil, s.err
	}
	return &hfclient.Response{StatusCode: http.StatusOK, Body: []byte(s.body), Attempts: 1}, nil
}

func (s *stubZeroShot) APIKeyConfigured() bool { return s.key != "" }
func (s *stubZeroShot) APIKeyLength() int      { return len(s.key) }

func (s *stubZeroShot) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubModel struct {
	dist    model.Distribution
	err     error
	trained bool
	delay   time.Duration
	// block, when set, holds Predict until closed.
	block chan struct{}
	calls atomic.Int32
}

func (m *stubModel) Predict(t *imageprocessor.Tensor) (model.Distribution, error) {
	m.calls.Add(1)
	if m.block != nil {
		<-m.block
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.dist, m.err
}

func (m *stubModel) InputSize() int { return 32 }
func (m *stubModel) Trained() bool  { return m.trained }
func (m *stubModel) Close() error   { return nil }

type stubLoader struct {
	err     error
	lastW   int
	lastH   int
	lastURL string
}

func (l *stubLoader) Load(ctx context.Context, url string, width, height int) (*imageprocessor.Tensor, error) {
	l.lastURL, l.lastW, l.lastH = url, width, height
	if l.err != nil {
		return nil, l.err
	}
	t := imageprocessor.NewTensor(height, width)
	for i := range t.Data {
		t.Data[i] = float32(i%7) / 7
	}
	return t, nil
}

type stubClassifier struct {
	result detection.Result
	err    error
	urls   []string
}

func (s *stubClassifier) Classify(ctx context.Context, imageURL string) (detection.Result, error) {
	s.urls = append(s.urls, imageURL)
	return s.result, s.err
}

type stubRepository struct {
	savedLogs []*repository.ClassificationLog
	saveErr   error
	findLog   *repository.ClassificationLog
	findErr   error
	agg       *repository.Aggregation
}

func (s *stubRepository) SaveLog(ctx context.Context, log *repository.ClassificationLog) error {
	s.savedLogs = append(s.savedLogs, log)
	return s.saveErr
}

func (s *stubRepository) FindByRequestID(ctx context.Context, requestID string) (*repository.ClassificationLog, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.findLog != nil {
		return s.findLog, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubRepository) AggregateMetrics(ctx context.Context) (*repository.Aggregation, error) {
	return s.agg, nil
}

type recordedClassification struct {
	strategy string
	outcome  string
}

type stubRecorder struct {
	mu              sync.Mutex
	classifications []recordedClassification
	hits, misses    int
}

func (r *stubRecorder) ObserveClassification(strategy, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classifications = append(r.classifications, recordedClassification{strategy, outcome})
}

func (r *stubRecorder) missCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.misses
}

func (r *stubRecorder) ObserveCacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

type stubCache struct {
	values  map[string]string
	setErr  error
	getErr  error
	setKeys []string
	ttls    []time.Duration
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	s.ttls = append(s.ttls, expiration)
	if s.setErr != nil {
		return s.setErr
	}
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value.(string)
	return nil
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}
