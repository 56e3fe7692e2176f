package helpers

import (
	"fmt"
	"io"
	"strconv"

	"github.com/coral-mesh/coral-bp/internal/metrics"
)

type metricRow struct {
	Series string `header:"METRIC"`
	Value  string `header:"VALUE"`
}

// WriteMetrics renders gathered metric samples.
func WriteMetrics(w io.Writer, format OutputFormat, samples []metrics.Sample) error {
	formatter, err := NewFormatter(format)
	if err != nil {
		return err
	}

	rows := make([]metricRow, 0, len(samples))
	for _, s := range samples {
		rows = append(rows, metricRow{
			Series: s.Series(),
			Value:  strconv.FormatFloat(s.Value, 'g', -1, 64),
		})
	}

	if format == FormatText {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return formatter.Format(rows, w)
}
