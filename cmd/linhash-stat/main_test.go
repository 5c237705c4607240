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
	"bytes"
	"testing"

	"github.com/cockroachdb/linhash"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestYAML(t *testing.T) {
	out, err := execute(t, "--keys=500", "--sequential", "--seed=7", "--remove=0.5", "--format=yaml")
	require.NoError(t, err)

	var got report
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))

	// Rebuild the same table directly and compare.
	h := linhash.NewMultiplicativeWithSeed(7)
	tbl := linhash.New(h)
	for k := uint64(1); k <= 500; k++ {
		require.NoError(t, tbl.Add(k))
	}
	for k := uint64(1); k <= 250; k++ {
		require.NoError(t, tbl.Remove(k))
	}
	want := report{
		Hasher:  h.String(),
		Added:   500,
		Removed: 250,
		Stats:   tbl.Stats(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected report (-want +got):\n%s", diff)
	}
	require.EqualValues(t, 250, got.Live)
	require.LessOrEqual(t, got.MaxProbe, got.Capacity)
}

func TestText(t *testing.T) {
	out, err := execute(t, "--keys=100", "--hasher=tabulation", "--digit-bits=4", "--seed=3")
	require.NoError(t, err)
	require.Contains(t, out, "hasher:      tabulation(r=4, rows=16)\n")
	require.Contains(t, out, "added:       100\n")
	require.Contains(t, out, "live:        100\n")
	require.Contains(t, out, "tombstones:  0\n")
}

func TestRandomKeys(t *testing.T) {
	c := &config{keys: 1000, keySeed: 9}
	keys := genKeys(c)
	require.Len(t, keys, 1000)
	seen := make(map[uint64]bool)
	for _, k := range keys {
		require.False(t, seen[k])
		seen[k] = true
	}
	require.Equal(t, keys, genKeys(c))
}

func TestFormatCheckedBeforeBuild(t *testing.T) {
	// The table is never built, so a bad format fails before any keys are
	// generated even when there are very many of them.
	c := &config{keys: 1 << 40, hasher: "multiplicative", format: "json"}
	_, err := buildReport(c)
	require.EqualError(t, err, `unknown --format "json"`)
}

func TestErrors(t *testing.T) {
	testCases := []struct {
		args     []string
		expected string
	}{
		{[]string{"--hasher=crc"}, `unknown --hasher "crc"`},
		{[]string{"--hasher=tabulation", "--digit-bits=3"}, "--digit-bits must be one of"},
		{[]string{"--remove=2"}, "--remove must be in [0, 1]"},
		{[]string{"--keys=-1"}, "--keys must not be negative"},
		{[]string{"--format=json"}, `unknown --format "json"`},
		{[]string{"extra"}, "unknown command"},
	}
	for _, c := range testCases {
		t.Run(c.expected, func(t *testing.T) {
			_, err := execute(t, c.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), c.expected)
		})
	}
}
