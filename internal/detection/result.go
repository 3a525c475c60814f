package detection

import "context"

// Label is the verdict reported for an image.
type Label string

const (
	LabelAI      Label = "ai"
	LabelReal    Label = "real"
	LabelUnknown Label = "unknown"
)

// Result is the label/confidence contract shared by every classification strategy.
// Confidence is always the probability mass of the reported label.
type Result struct {
	Label         Label              `json:"label,omitempty"`
	Confidence    float64            `json:"confidence,omitempty"`
	Source        string             `json:"source,omitempty"`
	Diagnostics   string             `json:"analysis,omitempty"`
	Probabilities map[Label]float64  `json:"probabilities,omitempty"`
	Features      map[string]float64 `json:"features,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// Failed reports whether the result carries an error instead of a verdict.
func (r Result) Failed() bool {
	return r.Error != ""
}

// ErrorResult converts a classification failure into a result without a label.
func ErrorResult(err error) Result {
	if err == nil {
		return Result{Label: LabelUnknown}
	}
	return Result{Error: err.Error()}
}

// Classifier is implemented by every classification strategy.
type Classifier interface {
	Classify(ctx context.Context, imageURL string) (Result, error)
}

// Health is the cheap liveness view of a classifier. It must not touch the network.
type Health struct {
	Status           string `json:"status"`
	Strategy         string `json:"strategy"`
	ModelLoaded      bool   `json:"model_loaded"`
	ModelTrained     bool   `json:"model_trained"`
	APIKeyConfigured bool   `json:"api_key_configured"`
	APIKeyLength     int    `json:"api_key_length"`
}

// HealthReporter is implemented by classifiers that can describe their readiness.
type HealthReporter interface {
	Health() Health
}
