package experiments

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Tarbo/litmus-platform/apperr"
	"github.com/Tarbo/litmus-platform/domain"
)

// ResultsBucket is one time-bucketed slice of an experiment's post-period
// exposure/conversion counts.
type ResultsBucket struct {
	BucketStart time.Time `json:"bucket_start"`
	Exposures   int       `json:"exposures"`
	Conversions int       `json:"conversions"`
}

// Results is the time-series aggregation backing GET /results/{id}.
type Results struct {
	ExperimentID string          `json:"experiment_id"`
	Interval     string          `json:"interval"`
	Buckets      []ResultsBucket `json:"buckets"`
}

// Results aggregates an experiment's post-period events into
// minute or hour buckets.
func (c *Coordinator) Results(ctx context.Context, experimentID, interval string) (*Results, error) {
	var truncate time.Duration
	switch interval {
	case "", "minute":
		interval = "minute"
		truncate = time.Minute
	case "hour":
		truncate = time.Hour
	default:
		return nil, apperr.InvalidArgumentf("unknown interval %q", interval)
	}

	events, err := c.Store.ExperimentEvents(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	byBucket := map[time.Time]*ResultsBucket{}
	for _, ev := range events {
		if ev.Period != domain.PeriodPost {
			continue
		}
		key := ev.ObservedAt.Truncate(truncate)
		b, ok := byBucket[key]
		if !ok {
			b = &ResultsBucket{BucketStart: key}
			byBucket[key] = b
		}
		switch ev.Kind {
		case domain.EventExposure:
			b.Exposures++
		case domain.EventConversion:
			b.Conversions++
		}
	}

	buckets := make([]ResultsBucket, 0, len(byBucket))
	for _, b := range byBucket {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].BucketStart.Before(buckets[j].BucketStart) })

	return &Results{ExperimentID: experimentID, Interval: interval, Buckets: buckets}, nil
}

// Export renders an experiment's built report as json or csv text.
func (c *Coordinator) Export(ctx context.Context, experimentID, format string) ([]byte, string, error) {
	switch format {
	case "", "json":
		format = "json"
	case "csv":
	default:
		return nil, "", apperr.InvalidArgumentf("unknown export format %q", format)
	}

	exp, err := c.Store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, "", err
	}
	rep, err := c.Report.Build(ctx, exp)
	if err != nil {
		return nil, "", err
	}

	if format == "json" {
		raw, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return nil, "", err
		}
		return raw, "application/json", nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"variant_id", "variant_key", "post_exposures", "post_conversions", "conversion_rate"})
	for _, vp := range rep.VariantPerformance {
		w.Write([]string{
			vp.VariantID, vp.VariantKey,
			fmt.Sprintf("%d", vp.PostExposures),
			fmt.Sprintf("%d", vp.PostConversions),
			fmt.Sprintf("%.4f", vp.ConversionRate),
		})
	}
	w.Flush()
	return buf.Bytes(), "text/csv", nil
}
