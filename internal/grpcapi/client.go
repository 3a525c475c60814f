package grpcapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/ai-detect/internal/detection"
	"github.com/example/ai-detect/internal/logging"
)

// Client calls a remote detector service.
type Client struct {
	conn   *grpc.ClientConn
	logger *zap.Logger
}

// Dial returns a ready-to-use client for the detector at addr.
func Dial(ctx context.Context, addr string, logger *zap.Logger) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcapi.dial", "", err)
		logger.Error("failed to dial detector", zap.Error(wrapped), zap.String("addr", addr))
		return nil, wrapped
	}
	return NewClient(conn, logger), nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn, logger *zap.Logger) *Client {
	return &Client{conn: conn, logger: logger.Named("grpc_client")}
}

// Classify asks the remote detector for a verdict on imageURL.
func (c *Client) Classify(ctx context.Context, imageURL string) (string, detection.Result, error) {
	in, err := structpb.NewStruct(map[string]interface{}{fieldImageURL: imageURL})
	if err != nil {
		return "", detection.Result{}, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ClassifyMethod, in, out); err != nil {
		wrapped := logging.NewOperationError("grpcapi.classify", "", err)
		c.logger.Error("detector call failed", zap.Error(wrapped), zap.String("url", imageURL))
		return "", detection.ErrorResult(err), wrapped
	}

	fields := out.GetFields()
	result := detection.Result{
		Label:       detection.Label(fields[fieldLabel].GetStringValue()),
		Confidence:  fields[fieldConfidence].GetNumberValue(),
		Source:      fields[fieldSource].GetStringValue(),
		Diagnostics: fields[fieldAnalysis].GetStringValue(),
	}
	if probs := numberFields(fields[fieldProbabilities]); probs != nil {
		result.Probabilities = make(map[detection.Label]float64, len(probs))
		for label, p := range probs {
			result.Probabilities[detection.Label(label)] = p
		}
	}
	result.Features = numberFields(fields[fieldFeatures])
	return fields[fieldRequestID].GetStringValue(), result, nil
}

// numberFields reads a nested struct of numbers; nil when v is absent.
func numberFields(v *structpb.Value) map[string]float64 {
	nested := v.GetStructValue().GetFields()
	if len(nested) == 0 {
		return nil
	}
	out := make(map[string]float64, len(nested))
	for name, n := range nested {
		out[name] = n.GetNumberValue()
	}
	return out
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
