package gameserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/cory-johannsen/dungeonclicker/internal/game/combat"
)

// testGRPCServer starts an in-memory gRPC server and returns a connected client.
func testGRPCServer(t *testing.T) (*FightServiceClient, *rig) {
	t.Helper()

	r := newRig(t, &recordingSink{}, nil, []combat.Dungeon{
		testDungeon(1, 1, 0, 30, 20),
		testDungeon(2, 2, 2, 40, 100),
	}, testPlayer(7, 1, 10))

	lis := bufconn.Listen(1 << 20)
	grpcServer := grpc.NewServer()
	RegisterFightServiceServer(grpcServer, NewFightService(r.h, zaptest.NewLogger(t)))

	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(func() { grpcServer.Stop() })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewFightServiceClient(conn), r
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func field(t *testing.T, st *structpb.Struct, key string) *structpb.Value {
	t.Helper()
	v, ok := st.GetFields()[key]
	require.True(t, ok, "missing field %q in %v", key, st)
	return v
}

func TestGRPCService_ListDungeons(t *testing.T) {
	client, _ := testGRPCServer(t)

	resp, err := client.Call(callCtx(t), "ListDungeons", map[string]any{})
	require.NoError(t, err)

	list := field(t, resp, "dungeons").GetListValue().GetValues()
	require.Len(t, list, 2)
	first := list[0].GetStructValue()
	assert.Equal(t, float64(1), first.GetFields()["id"].GetNumberValue())
	assert.Equal(t, "Lich", first.GetFields()["boss"].GetStructValue().GetFields()["name"].GetStringValue())
	assert.Equal(t, float64(2), list[1].GetStructValue().GetFields()["required_player_level"].GetNumberValue())
}

func TestGRPCService_FightFlow(t *testing.T) {
	client, _ := testGRPCServer(t)
	ctx := callCtx(t)

	resp, err := client.Call(ctx, "SelectDungeon", map[string]any{"player_id": 7, "dungeon_id": 1})
	require.NoError(t, err)
	assert.Equal(t, "select", field(t, resp, "phase").GetStringValue())
	assert.Equal(t, float64(20), field(t, resp, "boss_health").GetNumberValue())
	fightID := field(t, resp, "fight_id").GetStringValue()
	assert.NotEmpty(t, fightID)

	resp, err = client.Call(ctx, "StartFight", map[string]any{"player_id": 7})
	require.NoError(t, err)
	assert.Equal(t, "fighting", field(t, resp, "phase").GetStringValue())

	resp, err = client.Call(ctx, "Attack", map[string]any{"player_id": 7})
	require.NoError(t, err)
	assert.Equal(t, float64(10), field(t, resp, "boss_health").GetNumberValue())
	attack := field(t, resp, "attack").GetStructValue()
	assert.Equal(t, float64(10), attack.GetFields()["damage"].GetNumberValue())
	assert.False(t, attack.GetFields()["is_critical"].GetBoolValue())

	resp, err = client.Call(ctx, "Attack", map[string]any{"player_id": 7})
	require.NoError(t, err)
	assert.Equal(t, "victory", field(t, resp, "phase").GetStringValue())

	resp, err = client.Call(ctx, "GetFight", map[string]any{"player_id": 7})
	require.NoError(t, err)
	assert.Equal(t, fightID, field(t, resp, "fight_id").GetStringValue())
	assert.Equal(t, float64(2), field(t, resp, "clicks").GetNumberValue())

	resp, err = client.Call(ctx, "ResetFight", map[string]any{"player_id": 7})
	require.NoError(t, err)
	assert.Equal(t, "select", field(t, resp, "phase").GetStringValue())
	assert.Equal(t, float64(20), field(t, resp, "boss_health").GetNumberValue())

	_, err = client.Call(ctx, "AbandonFight", map[string]any{"player_id": 7})
	require.NoError(t, err)
	_, err = client.Call(ctx, "GetFight", map[string]any{"player_id": 7})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGRPCService_ErrorCodes(t *testing.T) {
	client, _ := testGRPCServer(t)
	ctx := callCtx(t)

	tests := []struct {
		name   string
		method string
		req    map[string]any
		want   codes.Code
	}{
		{"missing player", "GetFight", map[string]any{}, codes.InvalidArgument},
		{"string player", "GetFight", map[string]any{"player_id": "seven"}, codes.InvalidArgument},
		{"fractional player", "GetFight", map[string]any{"player_id": 1.5}, codes.InvalidArgument},
		{"negative dungeon", "SelectDungeon", map[string]any{"player_id": 7, "dungeon_id": -1}, codes.InvalidArgument},
		{"unknown dungeon", "SelectDungeon", map[string]any{"player_id": 7, "dungeon_id": 99}, codes.NotFound},
		{"unknown player", "SelectDungeon", map[string]any{"player_id": 8, "dungeon_id": 1}, codes.NotFound},
		{"level too low", "SelectDungeon", map[string]any{"player_id": 7, "dungeon_id": 2}, codes.PermissionDenied},
		{"no fight", "Attack", map[string]any{"player_id": 7}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Call(ctx, tt.method, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
}

func TestGRPCService_AttackBeforeStartIsFailedPrecondition(t *testing.T) {
	client, _ := testGRPCServer(t)
	ctx := callCtx(t)

	_, err := client.Call(ctx, "SelectDungeon", map[string]any{"player_id": 7, "dungeon_id": 1})
	require.NoError(t, err)
	_, err = client.Call(ctx, "Attack", map[string]any{"player_id": 7})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	_, err = client.Call(ctx, "ResetFight", map[string]any{"player_id": 7})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestGRPCService_WatchFight(t *testing.T) {
	client, r := testGRPCServer(t)
	ctx := callCtx(t)

	stream, err := client.WatchFight(ctx, 7)
	require.NoError(t, err)

	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "snapshot", field(t, first, "kind").GetStringValue())
	assert.False(t, field(t, first, "selected").GetBoolValue())

	_, err = client.Call(ctx, "SelectDungeon", map[string]any{"player_id": 7, "dungeon_id": 1})
	require.NoError(t, err)
	_, err = client.Call(ctx, "StartFight", map[string]any{"player_id": 7})
	require.NoError(t, err)
	r.manual.Advance(1)

	var kinds []string
	for len(kinds) < 3 {
		msg, err := stream.Recv()
		require.NoError(t, err)
		kinds = append(kinds, field(t, msg, "kind").GetStringValue())
		if len(kinds) == 3 {
			assert.Equal(t, float64(29), field(t, msg, "time_remaining").GetNumberValue())
		}
	}
	assert.Equal(t, []string{"phase", "phase", "tick"}, kinds)

	_, err = client.Call(ctx, "AbandonFight", map[string]any{"player_id": 7})
	require.NoError(t, err)
	for {
		if _, err := stream.Recv(); err != nil {
			break
		}
	}
}

func TestGRPCService_WatchFightUnknownPlayer(t *testing.T) {
	client, r := testGRPCServer(t)

	stream, err := client.WatchFight(callCtx(t), 8)
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Zero(t, r.h.ActiveFights())
}
