package api

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dgr198213-ui/Agent00/internal/rules"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

type staticSource struct {
	ruleSet []*types.Rule
	err     error
}

func (s *staticSource) ListRules(context.Context) ([]*types.Rule, error) {
	return s.ruleSet, s.err
}

// getterSource also serves direct lookups, like the SQL store.
type getterSource struct {
	staticSource
	gets int
}

func (g *getterSource) Get(_ context.Context, id types.RuleID) (*types.Rule, error) {
	g.gets++
	for _, r := range g.ruleSet {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, types.ErrRuleNotFound
}

func apiRule(id, condition string, confidence float64, priority int) *types.Rule {
	return &types.Rule{
		ID:         types.RuleID(id),
		Name:       id,
		Condition:  condition,
		Behavior:   "flag",
		Category:   "security",
		Priority:   priority,
		Confidence: confidence,
		Active:     true,
	}
}

func testRuleSet() []*types.Rule {
	off := apiRule("r-off", "action.type == 'delete'", 1, 100)
	off.Active = false
	return []*types.Rule{
		apiRule("r-delete", "action.type == 'delete'", 0.9, 50),
		apiRule("r-exe", "file.extension == '.exe'", 0.95, 80),
		apiRule("r-big", "file.size > 1MB", 0.5, 50),
		off,
		apiRule("r-write", "action.type == 'write'", 0.99, 50),
	}
}

// startServer serves svc over an in-memory connection.
func startServer(t *testing.T, svc DecisionServer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&ServiceDesc, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func newTestService(t *testing.T, source rules.RuleSource) (*DecisionService, *rules.Engine) {
	t.Helper()
	engine := rules.NewEngine(rules.WithRuleSource(source))
	svc, err := NewDecisionService(engine, nil)
	require.NoError(t, err)
	return svc, engine
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func uploadContext() map[string]any {
	return map[string]any{
		"action": map[string]any{"type": "delete"},
		"file":   map[string]any{"extension": ".exe", "size": 2097152},
	}
}

func TestNewDecisionService_Nil(t *testing.T) {
	_, err := NewDecisionService(nil, nil)
	assert.Error(t, err)
	_, err = NewDecisionService(rules.NewEngine(), nil)
	assert.Error(t, err)
}

func TestEvaluateRules(t *testing.T) {
	svc, _ := newTestService(t, &staticSource{ruleSet: testRuleSet()})
	client := startServer(t, svc)

	resp, err := client.EvaluateRules(context.Background(), mustStruct(t, map[string]any{"context": uploadContext()}))
	require.NoError(t, err)
	out := resp.AsMap()

	results := out["results"].([]any)
	require.Len(t, results, 3)
	var order []string
	for _, r := range results {
		order = append(order, r.(map[string]any)["rule_id"].(string))
	}
	assert.Equal(t, []string{"r-exe", "r-delete", "r-big"}, order)

	first := results[0].(map[string]any)
	assert.Equal(t, true, first["matched"])
	assert.InDelta(t, 0.95, first["confidence"], 1e-9)
	assert.Equal(t, "Condition matched: file.extension == '.exe'", first["reasoning"])
	ts, err := time.Parse(time.RFC3339Nano, first["timestamp"].(string))
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
	assert.Contains(t, first, "execution_time_ms")

	stats := out["stats"].(map[string]any)
	assert.Equal(t, float64(5), stats["total_rules"])
	assert.Equal(t, float64(4), stats["active_rules"])
	assert.Equal(t, float64(3), stats["candidate_rules"])
	assert.Equal(t, float64(3), stats["matched_rules"])
	assert.InDelta(t, 0.4, stats["index_efficiency"], 1e-9)
}

func TestEvaluateRules_Errors(t *testing.T) {
	svc, _ := newTestService(t, &staticSource{err: errors.New("database is down")})
	client := startServer(t, svc)
	ctx := context.Background()

	_, err := client.EvaluateRules(ctx, mustStruct(t, map[string]any{"context": map[string]any{}}))
	assert.Equal(t, codes.Unavailable, status.Code(err))

	_, err = client.EvaluateRules(ctx, mustStruct(t, map[string]any{"context": "not an object"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEvaluateRules_EmptyContext(t *testing.T) {
	svc, _ := newTestService(t, &staticSource{ruleSet: testRuleSet()})
	client := startServer(t, svc)

	resp, err := client.EvaluateRules(context.Background(), &structpb.Struct{})
	require.NoError(t, err)
	assert.Empty(t, resp.AsMap()["results"])
}

func TestEvaluateRule(t *testing.T) {
	src := &getterSource{staticSource: staticSource{ruleSet: testRuleSet()}}
	svc, engine := newTestService(t, src)
	client := startServer(t, svc)
	ctx := context.Background()

	// Inactive rules can still be evaluated individually
	resp, err := client.EvaluateRule(ctx, mustStruct(t, map[string]any{
		"rule_id": "r-off",
		"context": uploadContext(),
	}))
	require.NoError(t, err)
	out := resp.AsMap()
	assert.Equal(t, true, out["matched"])
	assert.Equal(t, "r-off", out["rule_name"])
	assert.Equal(t, 1, src.gets)

	_, ok := engine.RuleMetrics("r-off")
	assert.True(t, ok, "single evaluation must be recorded")

	resp, err = client.EvaluateRule(ctx, mustStruct(t, map[string]any{"rule_id": "r-write"}))
	require.NoError(t, err)
	assert.Equal(t, false, resp.AsMap()["matched"])
	assert.Equal(t, float64(0), resp.AsMap()["confidence"])

	_, err = client.EvaluateRule(ctx, mustStruct(t, map[string]any{"rule_id": "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.EvaluateRule(ctx, mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestEvaluateRule_ScansSourceWithoutGetter(t *testing.T) {
	svc, _ := newTestService(t, &staticSource{ruleSet: testRuleSet()})
	client := startServer(t, svc)

	resp, err := client.EvaluateRule(context.Background(), mustStruct(t, map[string]any{
		"rule_id": "r-big",
		"context": uploadContext(),
	}))
	require.NoError(t, err)
	assert.Equal(t, true, resp.AsMap()["matched"])

	_, err = client.EvaluateRule(context.Background(), mustStruct(t, map[string]any{"rule_id": "nope"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestValidateCondition(t *testing.T) {
	svc, _ := newTestService(t, &staticSource{})
	client := startServer(t, svc)
	ctx := context.Background()

	tests := []struct {
		name      string
		condition string
		wantValid bool
	}{
		{"comparison", "file.size > 5MB", true},
		{"logical", "action.type == 'delete' or user.role in 'admin,root'", true},
		{"unmatched paren", "(a == 1", false},
		{"dangling operator", "a ==", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.ValidateCondition(ctx, mustStruct(t, map[string]any{"condition": tt.condition}))
			require.NoError(t, err)
			out := resp.AsMap()
			assert.Equal(t, tt.wantValid, out["valid"])
			if tt.wantValid {
				assert.NotContains(t, out, "error")
			} else {
				assert.NotEmpty(t, out["error"])
			}
		})
	}

	_, err := client.ValidateCondition(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = client.ValidateCondition(ctx, mustStruct(t, map[string]any{"condition": 42}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestMetricsEndpoints(t *testing.T) {
	svc, _ := newTestService(t, &staticSource{ruleSet: testRuleSet()})
	client := startServer(t, svc)
	ctx := context.Background()

	_, err := client.GetRuleMetrics(ctx, mustStruct(t, map[string]any{"rule_id": "r-exe"}))
	assert.Equal(t, codes.NotFound, status.Code(err), "never evaluated")

	for range 3 {
		_, err := client.EvaluateRules(ctx, mustStruct(t, map[string]any{"context": uploadContext()}))
		require.NoError(t, err)
	}

	resp, err := client.GetRuleMetrics(ctx, mustStruct(t, map[string]any{"rule_id": "r-exe"}))
	require.NoError(t, err)
	m := resp.AsMap()
	assert.Equal(t, float64(3), m["evaluations"])
	assert.Equal(t, float64(3), m["matches"])
	assert.Equal(t, float64(1), m["match_rate"])
	assert.Len(t, m["execution_times_ms"], 3)
	assert.NotNil(t, m["last_used"])

	resp, err = client.GetSystemMetrics(ctx, &structpb.Struct{})
	require.NoError(t, err)
	sys := resp.AsMap()
	assert.Equal(t, float64(3), sys["rules"])
	assert.Equal(t, float64(9), sys["total_evaluations"])
	assert.Equal(t, float64(9), sys["samples"])
	idx := sys["index"].(map[string]any)
	assert.Equal(t, float64(4), idx["rules"])
	assert.Equal(t, false, idx["dirty"])
}

func TestToStatus(t *testing.T) {
	_, parseErr := rules.Parse("(")
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"not found", types.ErrRuleNotFound, codes.NotFound},
		{"syntax", parseErr, codes.InvalidArgument},
		{"invalid priority", types.ErrInvalidPriority, codes.InvalidArgument},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded},
		{"canceled", context.Canceled, codes.Canceled},
		{"other", errors.New("boom"), codes.Unavailable},
		{"already status", status.Error(codes.PermissionDenied, "no"), codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(toStatus(tt.err)))
		})
	}
	assert.NoError(t, toStatus(nil))
}

func TestEvaluationMap_Milliseconds(t *testing.T) {
	m := EvaluationMap(rules.Evaluation{
		Stats: rules.EvaluationStats{EvaluationTime: 1500 * time.Microsecond},
	})
	assert.Equal(t, 1.5, m["stats"].(map[string]any)["evaluation_time_ms"])
	assert.Empty(t, m["results"])

	r := ResultMap(types.DecisionResult{RuleID: "x"})
	assert.Nil(t, r["timestamp"], "zero time encodes as null")
}
