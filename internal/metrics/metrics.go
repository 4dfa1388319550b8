// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

// Package metrics registers the controller's Prometheus counters,
// gauges, and histograms with the default registry in init.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CocoCalls counts every fan-out attempt by outcome status.
	CocoCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coco_calls_total",
		Help: "Total fan-out calls made by the forwarder, by endpoint, host, port and status.",
	}, []string{"endpoint", "host", "port", "status"})

	// CocoExternalResponseTime observes per-host fan-out latency.
	CocoExternalResponseTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coco_external_response_time_seconds",
		Help:    "Response time of external fan-out calls, by endpoint, host and port.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "host", "port"})

	// CocoDroppedRequests counts queue admissions refused due to a full queue.
	CocoDroppedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coco_dropped_request_total",
		Help: "Total requests dropped because the request queue was full, by endpoint.",
	}, []string{"endpoint"})

	// CocoQueueLength reports the current queue depth.
	CocoQueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coco_queue_length",
		Help: "Current depth of the request queue.",
	})
)

func init() {
	prometheus.MustRegister(CocoCalls, CocoExternalResponseTime, CocoDroppedRequests, CocoQueueLength)
}

// ObserveCall records one fan-out call's outcome.
func ObserveCall(endpoint, hostname string, port, status int, seconds float64) {
	portStr := strconv.Itoa(port)
	statusStr := strconv.Itoa(status)
	CocoCalls.WithLabelValues(endpoint, hostname, portStr, statusStr).Inc()
	CocoExternalResponseTime.WithLabelValues(endpoint, hostname, portStr).Observe(seconds)
}

// ObserveDrop records one queue-full rejection for endpoint.
func ObserveDrop(endpoint string) {
	CocoDroppedRequests.WithLabelValues(endpoint).Inc()
}
