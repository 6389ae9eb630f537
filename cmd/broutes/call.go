package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/broutes/pkg/args"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/route"
	"github.com/okian/broutes/pkg/validate"
)

var errExpectation = errors.New("expectations not met")

func newCallCmd(g *globalFlags) *cobra.Command {
	f := &callFlags{}
	var quiet bool
	cmd := &cobra.Command{
		Use:   "call ROUTE METHOD",
		Short: "Invoke a route once and print the response",
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

			ex, err := r.Invoke(ctx, pos[1], layers...)
			if err != nil && !route.IsExpectationFailure(err) {
				return err
			}

			out := cmd.OutOrStdout()
			resp := ex.Response
			defer resp.Close()
			fmt.Fprintf(out, "%s %s -> %d (%s)\n", strings.ToUpper(ex.Method), resp.URL, resp.StatusCode, ex.Duration)
			if !quiet {
				h := resp.Headers()
				for _, k := range slices.Sorted(maps.Keys(h)) {
					fmt.Fprintf(out, "%s: %s\n", k, h[k])
				}
				fmt.Fprintln(out)
				if body := resp.Stream(); body != nil {
					if _, err := io.Copy(out, body); err != nil {
						return err
					}
				} else {
					fmt.Fprintln(out, resp.Text())
				}
			}

			if err != nil {
				for _, v := range validate.Failures(err) {
					fmt.Fprintf(cmd.ErrOrStderr(), "expectation failed: %s\n", v.Message)
				}
				e.log.Warn(ctx, "expectations not met",
					logger.String("route", ex.Route),
					logger.String("request_id", ex.RequestID),
				)
				return errExpectation
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the status line")
	return cmd
}
