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

// linhash-stat builds a linhash.Table from generated keys and reports its
// layout: capacity, tombstones, probe lengths and clustering.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/linhash"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/exp/rand"
	"gopkg.in/yaml.v3"
)

const (
	flagHasher     = "hasher"
	flagSeed       = "seed"
	flagDigitBits  = "digit-bits"
	flagKeys       = "keys"
	flagKeySeed    = "key-seed"
	flagSequential = "sequential"
	flagRemove     = "remove"
	flagFormat     = "format"
)

type config struct {
	hasher     string
	seed       uint64
	seeded     bool
	digitBits  uint
	keys       int
	keySeed    uint64
	sequential bool
	remove     float64
	format     string
}

// report is the output of a run.
type report struct {
	Hasher        string `yaml:"hasher"`
	Added         int    `yaml:"added"`
	Removed       int    `yaml:"removed"`
	linhash.Stats `yaml:",inline"`
}

func addFlags(f *pflag.FlagSet, c *config) {
	f.StringVar(&c.hasher, flagHasher, "multiplicative",
		"hash function: multiplicative or tabulation")
	f.Uint64Var(&c.seed, flagSeed, 0,
		"seed for the hash function; random if unset")
	f.UintVar(&c.digitBits, flagDigitBits, 8,
		"digit width in bits for the tabulation hasher")
	f.IntVar(&c.keys, flagKeys, 1000, "number of keys to add")
	f.Uint64Var(&c.keySeed, flagKeySeed, 1, "seed for generating random keys")
	f.BoolVar(&c.sequential, flagSequential, false, "add keys 1..n instead of random keys")
	f.Float64Var(&c.remove, flagRemove, 0,
		"fraction of the added keys to remove afterwards, in [0, 1]")
	f.StringVar(&c.format, flagFormat, "text", "output format: text or yaml")
}

func newRootCmd() *cobra.Command {
	c := &config{}
	cmd := &cobra.Command{
		Use:   "linhash-stat",
		Short: "report the layout of a linear probing hash table",
		Long: `linhash-stat adds generated keys to a linear probing hash table,
optionally removes a fraction of them, and prints statistics about
the resulting table: its capacity, live and occupied slot counts,
tombstones, probe lengths and clusters.

Comparing hashers:

	linhash-stat --keys=100000 --hasher=multiplicative --sequential
	linhash-stat --keys=100000 --hasher=tabulation --digit-bits=8 --sequential
`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.seeded = cmd.Flags().Changed(flagSeed)
			return run(cmd.OutOrStdout(), c)
		},
	}
	addFlags(cmd.Flags(), c)
	return cmd
}

func newHasher(c *config) (linhash.DimHasher, error) {
	switch c.hasher {
	case "multiplicative":
		if !c.seeded {
			return linhash.NewMultiplicative(), nil
		}
		return linhash.NewMultiplicativeWithSeed(c.seed), nil
	case "tabulation":
		switch c.digitBits {
		case 1, 2, 4, 8, 16:
		default:
			return nil, fmt.Errorf("--%s must be one of 1, 2, 4, 8 or 16, got %d",
				flagDigitBits, c.digitBits)
		}
		if !c.seeded {
			return linhash.NewTabulation(c.digitBits), nil
		}
		return linhash.NewTabulationWithSeed(c.digitBits, c.seed), nil
	default:
		return nil, fmt.Errorf("unknown --%s %q", flagHasher, c.hasher)
	}
}

// genKeys returns n distinct keys.
func genKeys(c *config) []uint64 {
	keys := make([]uint64, 0, c.keys)
	if c.sequential {
		for i := 1; i <= c.keys; i++ {
			keys = append(keys, uint64(i))
		}
		return keys
	}
	r := rand.New(rand.NewSource(c.keySeed))
	seen := make(map[uint64]struct{}, c.keys)
	for len(keys) < c.keys {
		k := r.Uint64()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func buildReport(c *config) (*report, error) {
	if c.keys < 0 {
		return nil, fmt.Errorf("--%s must not be negative", flagKeys)
	}
	if c.remove < 0 || c.remove > 1 {
		return nil, fmt.Errorf("--%s must be in [0, 1], got %g", flagRemove, c.remove)
	}
	switch c.format {
	case "text", "yaml":
	default:
		return nil, fmt.Errorf("unknown --%s %q", flagFormat, c.format)
	}
	h, err := newHasher(c)
	if err != nil {
		return nil, err
	}

	t := linhash.New(h)
	defer t.Close()

	keys := genKeys(c)
	for _, k := range keys {
		if err := t.Add(k); err != nil {
			return nil, err
		}
	}
	removed := int(c.remove * float64(len(keys)))
	for _, k := range keys[:removed] {
		if err := t.Remove(k); err != nil {
			return nil, err
		}
	}

	return &report{
		Hasher:  fmt.Sprint(h),
		Added:   len(keys),
		Removed: removed,
		Stats:   t.Stats(),
	}, nil
}

func run(w io.Writer, c *config) error {
	r, err := buildReport(c)
	if err != nil {
		return err
	}

	switch c.format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		fmt.Fprintf(w, "hasher:      %s\n", r.Hasher)
		fmt.Fprintf(w, "added:       %d\n", r.Added)
		fmt.Fprintf(w, "removed:     %d\n", r.Removed)
		fmt.Fprintf(w, "dim:         %d\n", r.Dim)
		fmt.Fprintf(w, "capacity:    %d\n", r.Capacity)
		fmt.Fprintf(w, "live:        %d\n", r.Live)
		fmt.Fprintf(w, "occupied:    %d\n", r.Occupied)
		fmt.Fprintf(w, "tombstones:  %d\n", r.Tombstones)
		fmt.Fprintf(w, "max probe:   %d\n", r.MaxProbe)
		fmt.Fprintf(w, "mean probe:  %.3f\n", r.MeanProbe)
		fmt.Fprintf(w, "clusters:    %d\n", r.Clusters)
		fmt.Fprintf(w, "max cluster: %d\n", r.MaxCluster)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
