// Package grpcapi exposes classification over gRPC without generated stubs:
// requests and responses are google.protobuf.Struct messages.
package grpcapi

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/ai-detect/internal/detection"
)

const (
	ServiceName    = "aidetect.v1.Detector"
	ClassifyMethod = "/" + ServiceName + "/Classify"

	fieldImageURL   = "image_url"
	fieldRequestID  = "request_id"
	fieldLabel      = "label"
	fieldConfidence = "confidence"
	fieldSource     = "source"
	fieldAnalysis   = "analysis"
	// Present only for results of the local model.
	fieldProbabilities = "probabilities"
	fieldFeatures      = "features"
)

// Service is the use case surface exposed over gRPC.
type Service interface {
	Classify(ctx context.Context, imageURL string) (string, detection.Result, error)
}

type detectorServer interface {
	classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*detectorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: classifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "aidetect/v1/detector.proto",
}

type server struct {
	svc    Service
	logger *zap.Logger
}

// Register installs the detector service and the standard health service on s.
// The returned health server lets callers flip the serving status on shutdown.
func Register(s *grpc.Server, svc Service, logger *zap.Logger) *health.Server {
	s.RegisterService(&serviceDesc, &server{svc: svc, logger: logger.Named("grpc_detector")})

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func (s *server) classify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	imageURL := strings.TrimSpace(in.GetFields()[fieldImageURL].GetStringValue())

	requestID, result, err := s.svc.Classify(ctx, imageURL)
	if err != nil {
		s.logger.Debug("classification failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, status.Error(codeFor(err), result.Error)
	}

	out := map[string]interface{}{
		fieldRequestID:  requestID,
		fieldLabel:      string(result.Label),
		fieldConfidence: result.Confidence,
		fieldSource:     result.Source,
		fieldAnalysis:   result.Diagnostics,
	}
	if len(result.Probabilities) > 0 {
		probs := make(map[string]interface{}, len(result.Probabilities))
		for label, p := range result.Probabilities {
			probs[string(label)] = p
		}
		out[fieldProbabilities] = probs
	}
	if len(result.Features) > 0 {
		named := make(map[string]interface{}, len(result.Features))
		for name, v := range result.Features {
			named[name] = v
		}
		out[fieldFeatures] = named
	}
	return structpb.NewStruct(out)
}

func classifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(detectorServer).classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ClassifyMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(detectorServer).classify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, detection.ErrInvalidInput),
		errors.Is(err, detection.ErrFetch),
		errors.Is(err, detection.ErrDecode):
		return codes.InvalidArgument
	case errors.Is(err, detection.ErrConfig):
		return codes.FailedPrecondition
	case errors.Is(err, detection.ErrUpstream):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}
