package gameserver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
	"github.com/cory-johannsen/dungeonclicker/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonclicker/internal/game/progression"
)

// FightServiceName is the fully qualified gRPC service name.
const FightServiceName = "dungeon.v1.FightService"

// FightServiceServer is the server API of FightService. Every request and
// response is a structpb.Struct keyed as described on each method.
type FightServiceServer interface {
	// ListDungeons: {} -> {dungeons: [...]}
	ListDungeons(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// SelectDungeon: {player_id, dungeon_id} -> fight
	SelectDungeon(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// StartFight: {player_id} -> fight
	StartFight(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Attack: {player_id} -> fight with an attack field
	Attack(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ResetFight: {player_id} -> fight
	ResetFight(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// AbandonFight: {player_id} -> {}
	AbandonFight(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetFight: {player_id} -> fight
	GetFight(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// WatchFight: {player_id} -> a snapshot followed by fight events.
	WatchFight(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// FightService adapts a FightHandler to FightServiceServer.
type FightService struct {
	fights *FightHandler
	logger *zap.Logger
}

// NewFightService creates a FightService.
//
// Precondition: fights and logger must be non-nil.
func NewFightService(fights *FightHandler, logger *zap.Logger) *FightService {
	return &FightService{fights: fights, logger: logger}
}

// ListDungeons implements FightServiceServer.
func (s *FightService) ListDungeons(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ds, err := s.fights.ListDungeons(ctx)
	if err != nil {
		return nil, s.toStatus("ListDungeons", err)
	}
	list := make([]any, 0, len(ds))
	for _, d := range ds {
		list = append(list, dungeonMap(d))
	}
	return newStruct(map[string]any{"dungeons": list})
}

// SelectDungeon implements FightServiceServer.
func (s *FightService) SelectDungeon(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	playerID, err := intField(req, "player_id")
	if err != nil {
		return nil, err
	}
	dungeonID, err := intField(req, "dungeon_id")
	if err != nil {
		return nil, err
	}
	view, err := s.fights.SelectDungeon(ctx, playerID, dungeonID)
	if err != nil {
		return nil, s.toStatus("SelectDungeon", err)
	}
	return newStruct(viewMap(view))
}

// StartFight implements FightServiceServer.
func (s *FightService) StartFight(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.viewCall(ctx, req, "StartFight", s.fights.StartFight)
}

// ResetFight implements FightServiceServer.
func (s *FightService) ResetFight(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.viewCall(ctx, req, "ResetFight", s.fights.ResetFight)
}

// GetFight implements FightServiceServer.
func (s *FightService) GetFight(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.viewCall(ctx, req, "GetFight", s.fights.GetFight)
}

// Attack implements FightServiceServer.
func (s *FightService) Attack(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	playerID, err := intField(req, "player_id")
	if err != nil {
		return nil, err
	}
	res, err := s.fights.Attack(ctx, playerID)
	if err != nil {
		return nil, s.toStatus("Attack", err)
	}
	m := viewMap(res.FightView)
	m["attack"] = attackMap(res.Outcome)
	return newStruct(m)
}

// AbandonFight implements FightServiceServer.
func (s *FightService) AbandonFight(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	playerID, err := intField(req, "player_id")
	if err != nil {
		return nil, err
	}
	if err := s.fights.AbandonFight(ctx, playerID); err != nil {
		return nil, s.toStatus("AbandonFight", err)
	}
	return &structpb.Struct{}, nil
}

// WatchFight implements FightServiceServer. The stream ends when the client
// cancels, the fight is abandoned, or the server shuts down.
func (s *FightService) WatchFight(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	playerID, err := intField(req, "player_id")
	if err != nil {
		return err
	}
	ctx := stream.Context()
	events, cancel, err := s.fights.Subscribe(ctx, playerID)
	if err != nil {
		return s.toStatus("WatchFight", err)
	}
	defer cancel()

	view, err := s.fights.GetFight(ctx, playerID)
	if err != nil {
		return s.toStatus("WatchFight", err)
	}
	msg, err := newStruct(snapshotEvent(view))
	if err != nil {
		return err
	}
	if err := stream.Send(msg); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := newStruct(eventMap(e))
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func (s *FightService) viewCall(
	ctx context.Context,
	req *structpb.Struct,
	method string,
	op func(context.Context, int64) (FightView, error),
) (*structpb.Struct, error) {
	playerID, err := intField(req, "player_id")
	if err != nil {
		return nil, err
	}
	view, err := op(ctx, playerID)
	if err != nil {
		return nil, s.toStatus(method, err)
	}
	return newStruct(viewMap(view))
}

// toStatus maps domain errors to gRPC status codes. Unexpected errors are
// logged and reported as Internal.
func (s *FightService) toStatus(method string, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, combat.ErrInvalidStateTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, combat.ErrInvalidDungeonDefinition):
		code = codes.InvalidArgument
	case errors.Is(err, ErrLevelTooLow):
		code = codes.PermissionDenied
	case errors.Is(err, dungeon.ErrDungeonNotFound),
		errors.Is(err, progression.ErrPlayerNotFound),
		errors.Is(err, ErrFightNotFound):
		code = codes.NotFound
	case errors.Is(err, ErrHandlerClosed):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		s.logger.Error("fight service call failed", zap.String("method", method), zap.Error(err))
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func intField(req *structpb.Struct, key string) (int64, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "missing field %q", key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "field %q must be a number", key)
	}
	f := n.NumberValue
	if f != math.Trunc(f) || f <= 0 || f > math.MaxInt64 {
		return 0, status.Errorf(codes.InvalidArgument, "field %q must be a positive integer, got %v", key, f)
	}
	return int64(f), nil
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encoding response: %v", err))
	}
	return st, nil
}

// RegisterFightServiceServer registers srv on s.
func RegisterFightServiceServer(s grpc.ServiceRegistrar, srv FightServiceServer) {
	s.RegisterService(&FightServiceDesc, srv)
}

// FightServiceDesc describes FightService for grpc.Server.RegisterService.
var FightServiceDesc = grpc.ServiceDesc{
	ServiceName: FightServiceName,
	HandlerType: (*FightServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDungeons", Handler: unaryHandler("ListDungeons", FightServiceServer.ListDungeons)},
		{MethodName: "SelectDungeon", Handler: unaryHandler("SelectDungeon", FightServiceServer.SelectDungeon)},
		{MethodName: "StartFight", Handler: unaryHandler("StartFight", FightServiceServer.StartFight)},
		{MethodName: "Attack", Handler: unaryHandler("Attack", FightServiceServer.Attack)},
		{MethodName: "ResetFight", Handler: unaryHandler("ResetFight", FightServiceServer.ResetFight)},
		{MethodName: "AbandonFight", Handler: unaryHandler("AbandonFight", FightServiceServer.AbandonFight)},
		{MethodName: "GetFight", Handler: unaryHandler("GetFight", FightServiceServer.GetFight)},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchFight",
			Handler:       watchFightHandler,
			ServerStreams: true,
		},
	},
	Metadata: "dungeon/v1/fight.proto",
}

func unaryHandler(
	method string,
	call func(FightServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) grpc.MethodHandler {
	fullMethod := "/" + FightServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FightServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FightServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchFightHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(FightServiceServer).WatchFight(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// FightServiceClient calls FightService.
type FightServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewFightServiceClient creates a FightServiceClient on cc.
func NewFightServiceClient(cc grpc.ClientConnInterface) *FightServiceClient {
	return &FightServiceClient{cc: cc}
}

// Call invokes the unary method with req.
func (c *FightServiceClient) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+FightServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchFight opens the event stream of playerID's fight.
func (c *FightServiceClient) WatchFight(ctx context.Context, playerID int64, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &FightServiceDesc.Streams[0], "/"+FightServiceName+"/WatchFight", opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	in, err := structpb.NewStruct(map[string]any{"player_id": playerID})
	if err != nil {
		return nil, err
	}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

var _ FightServiceServer = (*FightService)(nil)
