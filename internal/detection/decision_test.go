package detection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideReportsWinningProbability(t *testing.T) {
	cases := []struct {
		name      string
		pReal     float64
		pAI       float64
		wantLabel Label
		wantConf  float64
	}{
		{name: "ai wins", pReal: 0.2, pAI: 0.8, wantLabel: LabelAI, wantConf: 0.8},
		{name: "real wins", pReal: 0.7, pAI: 0.3, wantLabel: LabelReal, wantConf: 0.7},
		{name: "tie goes to real", pReal: 0.5, pAI: 0.5, wantLabel: LabelReal, wantConf: 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			label, conf := Decide(tc.pReal, tc.pAI)
			assert.Equal(t, tc.wantLabel, label)
			assert.Equal(t, tc.wantConf, conf)
		})
	}
}

func TestZeroShotPolicyMarginRule(t *testing.T) {
	policy := DefaultZeroShotPolicy()

	label, conf := policy.Decide(0.5, 0.42)
	assert.Equal(t, LabelReal, label)
	assert.InDelta(t, 0.55, conf, 1e-9)

	label, conf = policy.Decide(0.7, 0.3)
	assert.Equal(t, LabelAI, label)
	assert.InDelta(t, 0.7, conf, 1e-9)
}

func TestZeroShotPolicyRequiresMarginOverPhotograph(t *testing.T) {
	policy := DefaultZeroShotPolicy()

	label, conf := policy.Decide(0.6, 0.55)
	assert.Equal(t, LabelReal, label, "0.6 clears the floor but not photograph+0.1")
	assert.InDelta(t, 0.55, conf, 1e-9)
}

func TestZeroShotPolicyClampsConfidence(t *testing.T) {
	policy := DefaultZeroShotPolicy()

	label, conf := policy.Decide(0.99, 0.0)
	assert.Equal(t, LabelAI, label)
	assert.InDelta(t, 0.95, conf, 1e-9)

	label, conf = policy.Decide(0.1, 0.99)
	assert.Equal(t, LabelReal, label)
	assert.InDelta(t, 0.95, conf, 1e-9)

	label, conf = policy.Decide(0.0, 0.0)
	assert.Equal(t, LabelReal, label)
	assert.InDelta(t, 0.55, conf, 1e-9)
}

func TestErrorKindsMatchSentinels(t *testing.T) {
	cause := context.DeadlineExceeded
	fetchErr := fmt.Errorf("load: %w", &FetchError{URL: "http://x", Err: cause})

	require.True(t, errors.Is(fetchErr, ErrFetch))
	require.True(t, errors.Is(fetchErr, context.DeadlineExceeded))
	require.False(t, errors.Is(fetchErr, ErrUpstream))

	upstream := &UpstreamError{StatusCode: http.StatusUnauthorized, Body: "bad token", Attempts: 1}
	require.True(t, errors.Is(upstream, ErrUpstream))
	assert.Contains(t, upstream.Error(), "401")
	assert.Contains(t, upstream.Error(), "bad token")

	require.True(t, errors.Is(&ConfigError{Key: "HF_API_KEY", Reason: "not set"}, ErrConfig))
	require.True(t, errors.Is(&DecodeError{Err: errors.New("bad")}, ErrDecode))
	require.True(t, errors.Is(&ShapeMismatchError{Err: errors.New("object")}, ErrShapeMismatch))
	require.True(t, errors.Is(InvalidInput("imageUrl required"), ErrInvalidInput))
}

func TestErrorResultHasNoLabel(t *testing.T) {
	res := ErrorResult(&FetchError{URL: "http://x", StatusCode: http.StatusNotFound})

	assert.True(t, res.Failed())
	assert.Empty(t, res.Label)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.Error, "404")
}
