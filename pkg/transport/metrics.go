// Copyright 2025 The Reagent Authors
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

package transport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	turns    *prometheus.CounterVec
	steps    prometheus.Histogram
	requests *prometheus.HistogramVec
	pending  prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reagent",
			Name:      "turns_total",
			Help:      "Completed turns by terminal state.",
		}, []string{"state"}),
		steps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reagent",
			Name:      "turn_steps",
			Help:      "LLM calls per turn.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		requests: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reagent",
			Name:      "http_request_duration_seconds",
			Help:      "Inbound request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "reagent",
			Name:      "turns_in_flight",
			Help:      "Turns currently running.",
		}),
	}
}

// instrument records latency per route pattern. Must run inside the chi
// router so the route pattern is resolved.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
