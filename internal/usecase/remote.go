package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/hfclient"
	"github.com/example/ai-detect/internal/imageprocessor"
	"github.com/example/ai-detect/internal/logging"
)

const (
	// SourceZeroShot tags results produced by the hosted zero-shot model.
	SourceZeroShot = "hf_zero_shot"

	// PhotoLabel is the candidate that counts as evidence for a real photograph.
	PhotoLabel = "photograph"

	fallbackConfidence = 0.5
)

// DefaultCandidateLabels is the label set submitted with every image. Every
// label other than PhotoLabel counts towards the ai score.
var DefaultCandidateLabels = []string{
	"AI-generated image",
	PhotoLabel,
	"digital art",
	"3D render",
	"illustration",
}

// ImageFetcher downloads raw image bytes.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ZeroShotClient is the subset of hfclient.Client used by the remote path.
type ZeroShotClient interface {
	ZeroShot(ctx context.Context, dataURI string, labels []string) (*hfclient.Response, error)
	APIKeyConfigured() bool
	APIKeyLength() int
}

// RemoteOptions tunes the remote classifier.
type RemoteOptions struct {
	CandidateLabels []string
	MaxDimension    int
	JPEGQuality     int
	MaxPixels       int
	Policy          detection.ZeroShotPolicy
	Recorder        Recorder
}

// RemoteClassifier classifies images with a hosted zero-shot model and caches
// successful verdicts by URL.
type RemoteClassifier struct {
	fetcher   ImageFetcher
	client    ZeroShotClient
	cache     ResultCache
	labels    []string
	maxDim    int
	quality   int
	maxPixels int
	policy    detection.ZeroShotPolicy
	recorder  Recorder
	group     singleflight.Group
	logger    *zap.Logger
}

// NewRemoteClassifier wires the remote strategy. A nil cache disables caching.
func NewRemoteClassifier(fetcher ImageFetcher, client ZeroShotClient, cache ResultCache, opts RemoteOptions, logger *zap.Logger) *RemoteClassifier {
	if len(opts.CandidateLabels) == 0 {
		opts.CandidateLabels = DefaultCandidateLabels
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = imageprocessor.DefaultMaxDimension
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = imageprocessor.DefaultJPEGQuality
	}
	if opts.Policy == (detection.ZeroShotPolicy{}) {
		opts.Policy = detection.DefaultZeroShotPolicy()
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if cache == nil {
		cache = noCache{}
	}
	return &RemoteClassifier{
		fetcher:   fetcher,
		client:    client,
		cache:     cache,
		labels:    append([]string(nil), opts.CandidateLabels...),
		maxDim:    opts.MaxDimension,
		quality:   opts.JPEGQuality,
		maxPixels: opts.MaxPixels,
		policy:    opts.Policy,
		recorder:  opts.Recorder,
		logger:    logger.Named("remote_classifier"),
	}
}

// Classify returns the cached verdict for url or computes a fresh one. Only
// successful verdicts are cached; the shape-mismatch fallback is not.
// Concurrent misses for the same url share one upstream call, and a caller
// that gives up does not cancel it for the others.
func (c *RemoteClassifier) Classify(ctx context.Context, url string) (detection.Result, error) {
	if !c.client.APIKeyConfigured() {
		return detection.Result{}, &detection.ConfigError{Key: "HF_API_KEY", Reason: "credential is not configured"}
	}

	if cached, ok := c.cache.Get(ctx, url); ok {
		c.recorder.ObserveCacheLookup(true)
		return cached, nil
	}
	c.recorder.ObserveCacheLookup(false)

	// The shared call outlives any single caller; the fetcher and client
	// timeouts still bound it.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(url, func() (interface{}, error) {
		return c.classifyUncached(shared, url)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return detection.Result{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("joined in-flight classification", zap.String("url", url))
		}
		return res.Val.(detection.Result), nil
	case <-ctx.Done():
		return detection.Result{}, ctx.Err()
	}
}

func (c *RemoteClassifier) classifyUncached(ctx context.Context, url string) (detection.Result, error) {
	opLogger := logging.WithOperation(c.logger, "remote.classify", "")

	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return detection.Result{}, err
	}
	img, _, err := imageprocessor.DecodeLimited(data, c.maxPixels)
	if err != nil {
		return detection.Result{}, err
	}
	dataURI, err := imageprocessor.EncodeDataURI(img, c.maxDim, c.quality)
	if err != nil {
		return detection.Result{}, fmt.Errorf("encode image: %w", err)
	}

	resp, err := c.client.ZeroShot(ctx, dataURI, c.labels)
	if err != nil {
		return detection.Result{}, err
	}

	scores, err := hfclient.CandidateScores(resp.Body)
	if err != nil {
		opLogger.Warn("unexpected zero-shot response, using fallback", zap.Error(err))
		return detection.Result{
			Label:       detection.LabelReal,
			Confidence:  fallbackConfidence,
			Source:      SourceZeroShot,
			Diagnostics: "fallback: unexpected response shape",
		}, nil
	}

	aiScore, photoScore := c.evidence(scores)
	label, confidence := c.policy.Decide(aiScore, photoScore)
	result := detection.Result{
		Label:       label,
		Confidence:  confidence,
		Source:      SourceZeroShot,
		Diagnostics: describeScores(scores, aiScore, photoScore),
	}
	c.cache.Put(ctx, url, result)
	return result, nil
}

// evidence splits candidate scores into the ai score (best non-photograph
// candidate) and the photograph score. Labels outside the candidate set are ignored.
func (c *RemoteClassifier) evidence(scores map[string]float64) (aiScore, photoScore float64) {
	for _, label := range c.labels {
		score, ok := scores[label]
		if !ok {
			continue
		}
		if label == PhotoLabel {
			photoScore = score
			continue
		}
		if score > aiScore {
			aiScore = score
		}
	}
	return aiScore, photoScore
}

func describeScores(scores map[string]float64, aiScore, photoScore float64) string {
	labels := make([]string, 0, len(scores))
	for label := range scores {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, 0, len(labels)+2)
	parts = append(parts, fmt.Sprintf("ai_score=%.3f", aiScore), fmt.Sprintf("photo_score=%.3f", photoScore))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s=%.3f", label, scores[label]))
	}
	return strings.Join(parts, " ")
}

// Health never touches the network.
func (c *RemoteClassifier) Health() detection.Health {
	return detection.Health{
		Status:           "healthy",
		Strategy:         StrategyRemote,
		APIKeyConfigured: c.client.APIKeyConfigured(),
		APIKeyLength:     c.client.APIKeyLength(),
	}
}

type noCache struct{}

func (noCache) Get(context.Context, string) (detection.Result, bool) {
	return detection.Result{}, false
}
func (noCache) Put(context.Context, string, detection.Result) {}
