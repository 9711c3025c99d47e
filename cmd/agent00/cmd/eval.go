package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgr198213-ui/Agent00/internal/core/api"
	"github.com/dgr198213-ui/Agent00/internal/core/store"
	"github.com/dgr198213-ui/Agent00/internal/rules"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

func newEvalCmd(g *globalFlags) *cobra.Command {
	var (
		rulesFile string
		rawCtx    string
		ruleID    string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a rule file against a context offline",
		Example: `  agent00 eval --rules rules.yaml --context '{"action":{"type":"delete"}}'
  agent00 eval --rules rules.yaml --context @request.json --rule block-exe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, logger, err := g.load(cmd)
			if err != nil {
				return err
			}

			ruleSet, err := store.LoadRuleFile(rulesFile)
			if err != nil {
				return err
			}
			dctx, err := readContext(rawCtx)
			if err != nil {
				return err
			}

			engine := rules.NewEngine(rules.WithLogger(logger))
			var out any
			if ruleID != "" {
				rule := findRule(ruleSet, types.RuleID(ruleID))
				if rule == nil {
					return fmt.Errorf("%w: %s", types.ErrRuleNotFound, ruleID)
				}
				out = api.ResultMap(engine.EvaluateRule(rule, dctx))
			} else {
				out = api.EvaluationMap(engine.EvaluateRules(ruleSet, dctx))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&rulesFile, "rules", "", "YAML rule file")
	cmd.Flags().StringVar(&rawCtx, "context", "{}", "decision context as JSON, or @path to a JSON file")
	cmd.Flags().StringVar(&ruleID, "rule", "", "evaluate only this rule ID, active or not")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

// readContext decodes a JSON object given inline or as @path.
func readContext(raw string) (types.DecisionContext, error) {
	data := []byte(raw)
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read context file: %w", err)
		}
		data = b
	}

	var dctx types.DecisionContext
	if err := json.Unmarshal(data, &dctx); err != nil {
		return nil, fmt.Errorf("context must be a JSON object: %w", err)
	}
	if dctx == nil {
		dctx = types.DecisionContext{}
	}
	return dctx, nil
}

func findRule(ruleSet []*types.Rule, id types.RuleID) *types.Rule {
	for _, r := range ruleSet {
		if r.ID == id {
			return r
		}
	}
	return nil
}
