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
	"math"
	"math/rand"

	"github.com/cockroachdb/dhmap"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cmdFill = &cobra.Command{
	Use:   "fill",
	Short: "Fill a map and print its statistics",
	Long: `
The "fill" command inserts --count pseudo-random keys into a new map, erases
the --erase fraction of them, re-inserts the --reinsert fraction of the erased
keys and prints the statistics of the resulting map. The occupancy depends
only on --seed; probe statistics are reproducible only with --modulo, as the
default hashing is randomly seeded per map.

EXIT STATUS
===========

Exit status is 0 if the command was successful, and non-zero if there was any error.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := runFill(cmd.Context(), fillOptions, log.StandardLogger())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s)
		return nil
	},
}

// FillOptions bundles all options for the fill command.
type FillOptions struct {
	Count           int
	Erase           float64
	Reinsert        float64
	InitialCapacity int
	MaxLoadFactor   float64
	Seed            int64
	Modulo          bool
}

var fillOptions FillOptions

func init() {
	cmdRoot.AddCommand(cmdFill)
	addFillFlags(cmdFill, &fillOptions)
}

func addFillFlags(cmd *cobra.Command, opts *FillOptions) {
	f := cmd.Flags()
	f.IntVarP(&opts.Count, "count", "n", 10000, "insert `n` keys")
	f.Float64Var(&opts.Erase, "erase", 0, "erase this fraction of the inserted keys")
	f.Float64Var(&opts.Reinsert, "reinsert", 0, "re-insert this fraction of the erased keys")
	f.IntVar(&opts.InitialCapacity, "initial-capacity", 0, "initial capacity of the map, 0 allocates lazily")
	f.Float64Var(&opts.MaxLoadFactor, "max-load", dhmap.DefaultMaxLoadFactor, "load factor at which the map grows")
	f.Int64Var(&opts.Seed, "seed", 1, "seed for the key generator")
	f.BoolVar(&opts.Modulo, "modulo", false, "hash keys with key mod capacity instead of the runtime hash")
}

func (opts FillOptions) validate() error {
	if opts.Count < 0 {
		return errors.Errorf("invalid count %d", opts.Count)
	}
	if opts.Erase < 0 || opts.Erase > 1 {
		return errors.Errorf("erase fraction %v is not in [0, 1]", opts.Erase)
	}
	if opts.Reinsert < 0 || opts.Reinsert > 1 {
		return errors.Errorf("reinsert fraction %v is not in [0, 1]", opts.Reinsert)
	}
	if z := opts.MaxLoadFactor; !(z > 0) || math.IsInf(z, 0) {
		return errors.Errorf("invalid max load factor %v", opts.MaxLoadFactor)
	}
	return nil
}

func newMap(opts FillOptions, logger log.FieldLogger) *dhmap.Map[int64, int64] {
	if opts.Modulo {
		return dhmap.New[int64, int64](opts.InitialCapacity,
			dhmap.WithModuloHash[int64, int64](),
			dhmap.WithMaxLoadFactor[int64, int64](opts.MaxLoadFactor),
			dhmap.WithLogger[int64, int64](logger))
	}
	return dhmap.New[int64, int64](opts.InitialCapacity,
		dhmap.WithMaxLoadFactor[int64, int64](opts.MaxLoadFactor),
		dhmap.WithLogger[int64, int64](logger))
}

// checkEvery is the number of operations between context checks.
const checkEvery = 1024

func runFill(ctx context.Context, opts FillOptions, logger log.FieldLogger) (dhmap.Stats, error) {
	if err := opts.validate(); err != nil {
		return dhmap.Stats{}, err
	}

	m := newMap(opts, logger)
	defer m.Close()

	rng := rand.New(rand.NewSource(opts.Seed))
	keys := make([]int64, 0, opts.Count)
	for i := 0; i < opts.Count; i++ {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return dhmap.Stats{}, errors.Wrap(err, "fill")
			}
		}
		k := rng.Int63()
		if _, inserted := m.Insert(k, int64(i)); inserted {
			keys = append(keys, k)
		}
	}

	erased := keys[:int(opts.Erase*float64(len(keys)))]
	for i, k := range erased {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return dhmap.Stats{}, errors.Wrap(err, "erase")
			}
		}
		m.Delete(k)
	}

	for _, k := range erased[:int(opts.Reinsert*float64(len(erased)))] {
		m.Put(k, k)
	}

	s := m.Stats()
	logger.WithFields(log.Fields{
		"inserted":   len(keys),
		"erased":     len(erased),
		"capacity":   s.Capacity,
		"tombstones": s.Tombstones,
	}).Debug("fill done")
	return s, nil
}
