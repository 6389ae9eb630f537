package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/broutes/pkg/args"
)

// callFlags select a scenario and add call-site arguments.
type callFlags struct {
	scenario string
	group    string
	set      []string
}

func (f *callFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.scenario, "scenario", "", "scenario to apply")
	cmd.Flags().StringVar(&f.group, "group", "", "scenario group to look the scenario up in")
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "call-site argument as dotted.path=value; JSON values are decoded")
}

// kwargs turns --set pairs into the highest-precedence argument layer.
func (f *callFlags) kwargs() (args.Map, error) {
	if len(f.set) == 0 {
		return nil, nil
	}
	a := args.New(nil)
	for _, kv := range f.set {
		path, raw, ok := strings.Cut(kv, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("%w: --set %q, want path=value", errUsage, kv)
		}
		a.SetPath(path, parseValue(raw))
	}
	return a.ToMap()
}

// parseValue decodes JSON literals and keeps anything else as a string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func newArgsCmd(g *globalFlags) *cobra.Command {
	f := &callFlags{}
	cmd := &cobra.Command{
		Use:   "args ROUTE METHOD",
		Short: "Print the merged request arguments without sending",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, pos []string) error {
			ctx := cmd.Context()
			e, err := g.load(ctx)
			if err != nil {
				return err
			}
			defer e.close(ctx)

			r, err := e.route(pos[0], f.scenario, f.group)
			if err != nil {
				return err
			}
			kw, err := f.kwargs()
			if err != nil {
				return err
			}
			var layers []args.Map
			if kw != nil {
				layers = append(layers, kw)
			}
			parsed, err := r.ParsedRequestArgs(ctx, pos[1], layers...)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(parsed)
		},
	}
	f.register(cmd)
	return cmd
}
