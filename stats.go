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

package linhash

// Stats describes the physical layout of a Table.
type Stats struct {
	Dim        uint `yaml:"dim"`
	Capacity   int  `yaml:"capacity"`
	Live       int  `yaml:"live"`
	Occupied   int  `yaml:"occupied"`
	Tombstones int  `yaml:"tombstones"`
	// MaxProbe is the largest number of slots a successful Contains visits,
	// and MeanProbe the average over all keys.
	MaxProbe  int     `yaml:"max_probe"`
	MeanProbe float64 `yaml:"mean_probe"`
	// Clusters is the number of maximal runs of full or deleted slots, and
	// MaxCluster the length of the longest one.
	Clusters   int `yaml:"clusters"`
	MaxCluster int `yaml:"max_cluster"`
}

// Stats computes layout statistics for the table. It is O(capacity).
func (t *Table) Stats() Stats {
	s := Stats{
		Dim:        t.dim,
		Capacity:   len(t.slots),
		Live:       t.used,
		Occupied:   t.occupied,
		Tombstones: t.occupied - t.used,
	}
	if len(t.slots) == 0 {
		return s
	}

	mask := len(t.slots) - 1
	var total int
	for i := range t.slots {
		if t.slots[i].ctrl != ctrlFull {
			continue
		}
		probes := ((i - t.Hash(t.slots[i].key)) & mask) + 1
		total += probes
		if probes > s.MaxProbe {
			s.MaxProbe = probes
		}
	}
	if t.used > 0 {
		s.MeanProbe = float64(total) / float64(t.used)
	}

	// Start the scan just past an empty slot so that a cluster wrapping
	// around the end of the array is counted once.
	start := -1
	for i := range t.slots {
		if t.slots[i].ctrl == ctrlEmpty {
			start = i
			break
		}
	}
	if start < 0 {
		s.Clusters, s.MaxCluster = 1, len(t.slots)
		return s
	}
	var run int
	for n := 1; n <= len(t.slots); n++ {
		if t.slots[(start+n)&mask].ctrl == ctrlEmpty {
			if run > 0 {
				s.Clusters++
				if run > s.MaxCluster {
					s.MaxCluster = run
				}
			}
			run = 0
			continue
		}
		run++
	}
	return s
}
