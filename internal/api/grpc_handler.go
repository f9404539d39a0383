package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"games-catalog-service/internal/catalog"
	"games-catalog-service/internal/domain"
	"games-catalog-service/internal/logging"
	"games-catalog-service/internal/store"
)

const gameCatalogServiceName = "games.v1.GameCatalog"

// GameCatalogServer is the gRPC read surface of the catalog. Messages are the
// protobuf well-known types, so no generated code is needed on either side.
type GameCatalogServer interface {
	GetGame(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	// SearchGames takes {"name": string, "genre": number, "size": number}.
	SearchGames(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
	TopSearched(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error)
}

// GameCatalogServiceDesc describes the games.v1.GameCatalog service.
var GameCatalogServiceDesc = grpc.ServiceDesc{
	ServiceName: gameCatalogServiceName,
	HandlerType: (*GameCatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetGame", Handler: getGameHandler},
		{MethodName: "SearchGames", Handler: searchGamesHandler},
		{MethodName: "TopSearched", Handler: topSearchedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "games/v1/catalog.proto",
}

// RegisterGameCatalogServer registers srv on s.
func RegisterGameCatalogServer(s grpc.ServiceRegistrar, srv GameCatalogServer) {
	s.RegisterService(&GameCatalogServiceDesc, srv)
}

func getGameHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameCatalogServer).GetGame(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + gameCatalogServiceName + "/GetGame"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameCatalogServer).GetGame(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func searchGamesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameCatalogServer).SearchGames(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + gameCatalogServiceName + "/SearchGames"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameCatalogServer).SearchGames(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func topSearchedHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GameCatalogServer).TopSearched(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + gameCatalogServiceName + "/TopSearched"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(GameCatalogServer).TopSearched(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

// GameCatalogClient calls the games.v1.GameCatalog service.
type GameCatalogClient struct {
	cc grpc.ClientConnInterface
}

func NewGameCatalogClient(cc grpc.ClientConnInterface) *GameCatalogClient {
	return &GameCatalogClient{cc: cc}
}

func (c *GameCatalogClient) GetGame(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+gameCatalogServiceName+"/GetGame", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GameCatalogClient) SearchGames(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+gameCatalogServiceName+"/SearchGames", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GameCatalogClient) TopSearched(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+gameCatalogServiceName+"/TopSearched", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCHandler implements GameCatalogServer on top of the catalog service.
type GRPCHandler struct {
	catalog Catalog
}

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(c Catalog) *GRPCHandler {
	return &GRPCHandler{catalog: c}
}

// --- Helper: Error Mapping ---
func mapErrorToGrpcStatus(ctx context.Context, err error, resource string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrGameNotFound),
		errors.Is(err, store.ErrGenreNotFound),
		errors.Is(err, store.ErrPromotionNotFound):
		return status.Errorf(codes.NotFound, "%s not found", resource)
	case errors.Is(err, store.ErrGenreExists):
		return status.Errorf(codes.AlreadyExists, "%s already exists", resource)
	default:
		logger := logging.Ctx(ctx)
		logger.Error().Err(err).Str("resource", resource).Msg("gRPC request failed")
		return status.Errorf(codes.Internal, "failed to process request for %s", resource)
	}
}

// toStruct and toList re-shape the JSON form of a value, so gRPC callers see
// exactly the fields the HTTP API returns.
func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func toList(v interface{}) (*structpb.ListValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.ListValue{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GRPCHandler) GetGame(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id, err := uuid.Parse(req.GetValue())
	if err != nil || id == uuid.Nil {
		return nil, status.Error(codes.InvalidArgument, "game ID must be a non-empty UUID")
	}

	game, err := s.catalog.GetGame(ctx, id)
	if err != nil {
		return nil, mapErrorToGrpcStatus(ctx, err, "game "+id.String())
	}
	out, err := toStruct(game)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode game: %v", err)
	}
	return out, nil
}

func (s *GRPCHandler) SearchGames(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	fields := req.GetFields()
	q := catalog.SearchQuery{Text: fields["name"].GetStringValue()}

	if v, ok := fields["genre"]; ok {
		if _, isNumber := v.GetKind().(*structpb.Value_NumberValue); !isNumber {
			return nil, status.Error(codes.InvalidArgument, "genre must be a number")
		}
		genre := int(v.GetNumberValue())
		q.Genre = &genre
	}
	if v, ok := fields["size"]; ok {
		q.Size = int(v.GetNumberValue())
	}

	results, err := s.catalog.Search(ctx, q)
	if err != nil {
		return nil, mapErrorToGrpcStatus(ctx, err, "search")
	}
	out, err := toList(results)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode results: %v", err)
	}
	return out, nil
}

func (s *GRPCHandler) TopSearched(ctx context.Context, req *wrapperspb.Int32Value) (*structpb.ListValue, error) {
	results, err := s.catalog.TopSearched(ctx, int(req.GetValue()))
	if err != nil {
		return nil, mapErrorToGrpcStatus(ctx, err, "top searched games")
	}
	out, err := toList(results)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode results: %v", err)
	}
	return out, nil
}

const metadataKeyRequestID = "x-request-id"

// UnaryLoggingInterceptor attaches a request-scoped logger to the context and
// logs each call with its status code and latency. The request id comes from
// the x-request-id metadata key when the caller sends one.
func UnaryLoggingInterceptor(base zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		logger := base.With().
			Str(logging.FieldRequestID, requestIDFromMetadata(ctx)).
			Str(logging.FieldMethod, info.FullMethod).
			Logger()
		resp, err := handler(logging.WithLogger(ctx, logger), req)

		code := status.Code(err)
		event := logger.Info()
		if code == codes.Internal || code == codes.Unknown {
			event = logger.Error().Err(err)
		}
		event.Str("grpc_code", code.String()).
			Float64(logging.FieldLatency, float64(time.Since(start).Milliseconds())).
			Msg("gRPC request completed")
		return resp, err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(metadataKeyRequestID); len(vals) > 0 && vals[0] != "" {
			return vals[0]
		}
	}
	return uuid.New().String()
}
