package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dgr198213-ui/Agent00/internal/core/store"
	"github.com/dgr198213-ui/Agent00/internal/types"
)

func newRulesCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage rules stored in the database",
	}
	cmd.AddCommand(
		newRulesListCmd(g),
		newRulesAddCmd(g),
		newRulesToggleCmd(g),
		newRulesDeleteCmd(g),
	)
	return cmd
}

func newRulesListCmd(g *globalFlags) *cobra.Command {
	var (
		category  string
		asJSON    bool
		countOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules, highest priority first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			database, rs, err := openStore(cfg, store.WithLogger(logger))
			if err != nil {
				return err
			}
			defer database.Close()

			out := cmd.OutOrStdout()
			if countOnly && category == "" {
				n, err := rs.Count(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out, n)
				return nil
			}

			var ruleSet []*types.Rule
			if category != "" {
				ruleSet, err = rs.ListByCategory(cmd.Context(), category)
			} else {
				ruleSet, err = rs.ListRules(cmd.Context())
			}
			if err != nil {
				return err
			}

			if countOnly {
				fmt.Fprintln(out, len(ruleSet))
				return nil
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ruleSet)
			}

			table := tablewriter.NewWriter(out)
			table.Header("ID", "Name", "Category", "Priority", "Confidence", "Active", "Condition")
			for _, r := range ruleSet {
				if err := table.Append(
					string(r.ID),
					r.Name,
					r.Category,
					strconv.Itoa(r.Priority),
					strconv.FormatFloat(r.Confidence, 'f', 2, 64),
					strconv.FormatBool(r.Active),
					r.Condition,
				); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only rules in this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print rules as JSON")
	cmd.Flags().BoolVar(&countOnly, "count", false, "print only the number of rules")
	return cmd
}

func newRulesAddCmd(g *globalFlags) *cobra.Command {
	rule := types.Rule{
		Category:   store.DefaultCategory,
		Priority:   store.DefaultPriority,
		Confidence: store.DefaultConfidence,
	}
	var (
		id       string
		inactive bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a rule",
		Example: `  agent00 rules add --name block-exe --condition "file.extension == '.exe'" \
    --behavior deny --category security --priority 90 --confidence 0.95`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			database, rs, err := openStore(cfg, store.WithLogger(logger))
			if err != nil {
				return err
			}
			defer database.Close()

			in := rule
			in.ID = types.RuleID(id)
			in.Active = !inactive
			created, err := rs.Create(cmd.Context(), &in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&id, "id", "", "rule ID (default: generated UUIDv7)")
	f.StringVar(&rule.Name, "name", "", "unique rule name")
	f.StringVar(&rule.Condition, "condition", "", "rule condition")
	f.StringVar(&rule.Behavior, "behavior", "", "behavior reported when the rule matches")
	f.StringVar(&rule.Category, "category", rule.Category, "rule category")
	f.IntVar(&rule.Priority, "priority", rule.Priority, "priority (1-100)")
	f.Float64Var(&rule.Confidence, "confidence", rule.Confidence, "confidence reported on match (0-1)")
	f.BoolVar(&inactive, "inactive", false, "create the rule disabled")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("condition")
	return cmd
}

func newRulesToggleCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <rule-id>",
		Short: "Enable a disabled rule or disable an enabled one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			database, rs, err := openStore(cfg, store.WithLogger(logger))
			if err != nil {
				return err
			}
			defer database.Close()

			id := types.RuleID(args[0])
			rule, err := rs.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := rs.SetActive(cmd.Context(), id, !rule.Active); err != nil {
				return err
			}

			state := "enabled"
			if rule.Active {
				state = "disabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, state)
			return nil
		},
	}
}

func newRulesDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}
			database, rs, err := openStore(cfg, store.WithLogger(logger))
			if err != nil {
				return err
			}
			defer database.Close()

			if err := rs.Delete(cmd.Context(), types.RuleID(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", args[0])
			return nil
		},
	}
}
