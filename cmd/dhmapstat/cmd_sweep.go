// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/dhmap"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var cmdSweep = &cobra.Command{
	Use:   "sweep",
	Short: "Fill one map per maximum load factor and compare their statistics",
	Long: `
The "sweep" command runs "fill" once for every --load value, concurrently, and
prints one row of statistics per load factor in the order given.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := runSweep(cmd.Context(), sweepOptions, log.StandardLogger())
		if err != nil {
			return err
		}
		printSweep(cmd.OutOrStdout(), sweepOptions.Loads, res)
		return nil
	},
}

// SweepOptions bundles all options for the sweep command.
type SweepOptions struct {
	FillOptions
	Loads []float64
	Jobs  int
}

var sweepOptions SweepOptions

func init() {
	cmdRoot.AddCommand(cmdSweep)
	addFillFlags(cmdSweep, &sweepOptions.FillOptions)

	f := cmdSweep.Flags()
	f.Float64SliceVar(&sweepOptions.Loads, "load", []float64{0.5, 0.6, 0.7, 0.8, 0.9}, "maximum load factors to compare")
	f.IntVarP(&sweepOptions.Jobs, "jobs", "j", 0, "fill at most `n` maps concurrently, 0 means no limit")
}

func runSweep(ctx context.Context, opts SweepOptions, logger log.FieldLogger) ([]dhmap.Stats, error) {
	if len(opts.Loads) == 0 {
		return nil, errors.New("no load factors given")
	}

	g, ctx := errgroup.WithContext(ctx)
	if opts.Jobs > 0 {
		g.SetLimit(opts.Jobs)
	}

	// Each goroutine owns its map and writes only its own result.
	res := make([]dhmap.Stats, len(opts.Loads))
	for i, z := range opts.Loads {
		g.Go(func() error {
			fo := opts.FillOptions
			fo.MaxLoadFactor = z
			s, err := runFill(ctx, fo, logger.WithField("load", z))
			if err != nil {
				return errors.Wrapf(err, "load factor %v", z)
			}
			res[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func printSweep(w io.Writer, loads []float64, res []dhmap.Stats) {
	for i, s := range res {
		fmt.Fprintf(w, "max-load=%.2f %s\n", loads[i], s)
	}
}
