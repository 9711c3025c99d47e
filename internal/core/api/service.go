// Package api implements the gRPC decision API.
package api

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dgr198213-ui/Agent00/internal/rules"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

// ruleGetter is implemented by sources that can fetch one rule directly
// (the SQL store); other sources are scanned.
type ruleGetter interface {
	Get(ctx context.Context, id types.RuleID) (*types.Rule, error)
}

// DecisionService implements DecisionServer.
// Thin orchestration layer over the engine and its rule source.
type DecisionService struct {
	engine *rules.Engine
	source rules.RuleSource
	logger *log.Logger
}

// NewDecisionService creates service instance over engine, which must have
// been built with a rule source.
func NewDecisionService(engine *rules.Engine, logger *log.Logger) (*DecisionService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	source := engine.RuleSource()
	if source == nil {
		return nil, fmt.Errorf("engine has no rule source")
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &DecisionService{
		engine: engine,
		source: source,
		logger: logger.WithPrefix("api"),
	}, nil
}

// EvaluateRules evaluates the full rule set against req.context and returns
// the ranked matches with evaluation statistics.
func (s *DecisionService) EvaluateRules(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	dctx, err := decisionContext(req)
	if err != nil {
		return nil, err
	}

	eval, err := s.engine.Decide(ctx, dctx)
	if err != nil {
		s.logger.Error("bulk evaluation failed", "err", err)
		return nil, toStatus(err)
	}
	s.logger.Debug("evaluated rules",
		"total", eval.Stats.TotalRules,
		"candidates", eval.Stats.CandidateRules,
		"matched", eval.Stats.MatchedRules,
	)
	return encode(EvaluationMap(eval))
}

// EvaluateRule evaluates one rule, active or not, against req.context.
func (s *DecisionService) EvaluateRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := ruleID(req)
	if err != nil {
		return nil, err
	}
	dctx, err := decisionContext(req)
	if err != nil {
		return nil, err
	}

	rule, err := s.lookup(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(ResultMap(s.engine.EvaluateRule(rule, dctx)))
}

// ValidateCondition reports whether req.condition parses.
func (s *DecisionService) ValidateCondition(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := req.GetFields()["condition"]
	if !ok {
		return nil, invalidArgument("condition required")
	}
	if _, isString := v.GetKind().(*structpb.Value_StringValue); !isString {
		return nil, invalidArgument("condition must be a string")
	}

	res := s.engine.ValidateCondition(v.GetStringValue())
	out := map[string]any{"valid": res.Valid}
	if !res.Valid {
		out["error"] = res.Error
	}
	return encode(out)
}

// GetRuleMetrics returns the metrics of req.rule_id.
func (s *DecisionService) GetRuleMetrics(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := ruleID(req)
	if err != nil {
		return nil, err
	}
	m, ok := s.engine.RuleMetrics(id)
	if !ok {
		return nil, toStatus(fmt.Errorf("%w: no metrics for %s", types.ErrRuleNotFound, id))
	}
	return encode(RuleMetricsMap(m))
}

// GetSystemMetrics returns pooled metrics and index state.
func (s *DecisionService) GetSystemMetrics(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	idx, dirty := s.engine.IndexStats()
	return encode(SystemMetricsMap(s.engine.SystemMetrics(), idx, dirty))
}

func (s *DecisionService) lookup(ctx context.Context, id types.RuleID) (*types.Rule, error) {
	if g, ok := s.source.(ruleGetter); ok {
		return g.Get(ctx, id)
	}
	ruleSet, err := s.source.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	for _, r := range ruleSet {
		if r != nil && r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrRuleNotFound, id)
}

// decisionContext extracts req.context; an absent context is empty.
func decisionContext(req *structpb.Struct) (types.DecisionContext, error) {
	v, ok := req.GetFields()["context"]
	if !ok {
		return types.DecisionContext{}, nil
	}
	sv, isStruct := v.GetKind().(*structpb.Value_StructValue)
	if !isStruct {
		return nil, invalidArgument("context must be an object")
	}
	return types.DecisionContext(sv.StructValue.AsMap()), nil
}

func ruleID(req *structpb.Struct) (types.RuleID, error) {
	id := req.GetFields()["rule_id"].GetStringValue()
	if id == "" {
		return "", invalidArgument("rule_id required")
	}
	return types.RuleID(id), nil
}

func encode(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, internalError(fmt.Errorf("failed to encode response: %w", err))
	}
	return out, nil
}
