// Copyright 2015 Matthew Holt and The Caddy Authors
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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestArriveAndCompleteTrackProcessingBalance(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.Arrive("srv1")
	r.Arrive("srv1")
	r.Complete("srv1")

	if got := testutil.ToFloat64(r.Processing.WithLabelValues("srv1")); got != 1 {
		t.Fatalf("expected processing=1, got %v", got)
	}
	if got := testutil.ToFloat64(r.Accepted.WithLabelValues("srv1")); got != 2 {
		t.Fatalf("expected accepted=2, got %v", got)
	}
}

func TestProcessingNeverNegativeUnderBalancedCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	for i := 0; i < 5; i++ {
		r.Arrive("srv1")
	}
	for i := 0; i < 5; i++ {
		r.Complete("srv1")
	}
	if got := testutil.ToFloat64(r.Processing.WithLabelValues("srv1")); got != 0 {
		t.Fatalf("expected processing=0 after balanced arrive/complete, got %v", got)
	}
}
