// Copyright 2019 Intel Corporation. All Rights Reserved.
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
	"io"

	"github.com/pkg/errors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/intel/intel-fpga-vtp/pkg/fpga/vtp"
)

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func gauge(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func counter(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Counter: &dto.Counter{Value: proto.Float64(v)}}
}

// metricFamilies converts the context statistics into Prometheus metric
// families.
func metricFamilies(s vtp.Stats) []*dto.MetricFamily {
	return []*dto.MetricFamily{
		{
			Name: proto.String("vtp_mapped_pages"),
			Help: proto.String("Number of pages mapped in the translation table."),
			Type: dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{
				gauge(float64(s.Mapped4K), label("size", vtp.Page4K.String())),
				gauge(float64(s.Mapped2M), label("size", vtp.Page2M.String())),
			},
		},
		{
			Name:   proto.String("vtp_table_pages"),
			Help:   proto.String("Number of shared pages holding forward table nodes."),
			Type:   dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{gauge(float64(s.TablePages))},
		},
		{
			Name:   proto.String("vtp_shadow_nodes"),
			Help:   proto.String("Number of nodes in the physical to table node index."),
			Type:   dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{gauge(float64(s.ShadowSlabs))},
		},
		{
			Name: proto.String("vtp_translations_total"),
			Help: proto.String("Number of host side translations by result."),
			Type: dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{
				counter(float64(s.Hits), label("result", "hit")),
				counter(float64(s.Misses), label("result", "miss")),
			},
		},
	}
}

// writeMetrics prints the statistics in the Prometheus text format.
func writeMetrics(w io.Writer, s vtp.Stats) error {
	for _, mf := range metricFamilies(s) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return errors.Wrapf(err, "unable to write %s", mf.GetName())
		}
	}
	return nil
}
