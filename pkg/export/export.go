// Package export writes the final statistics of a run in several formats.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/taxidispatch/core/stats"
)

// WriteText prints the summary and the per-taxi breakdown as aligned tables.
func WriteText(w io.Writer, sum stats.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FINAL STATISTICS")
	fmt.Fprintf(tw, "Uptime:\t%s\n", clock(sum.Uptime))
	fmt.Fprintf(tw, "Rides completed:\t%d\n", sum.RidesCompleted)
	fmt.Fprintf(tw, "Orders assigned:\t%d\n", sum.OrdersAssigned)
	fmt.Fprintf(tw, "Orders not assigned:\t%d\n", sum.OrdersFailed)
	fmt.Fprintf(tw, "Total distance:\t%.1f km\n", sum.TotalDistance)
	fmt.Fprintf(tw, "Average ride:\t%.1f km\n", sum.AverageRide)
	fmt.Fprintf(tw, "Total revenue:\t%.2f\n", sum.TotalRevenue)
	fmt.Fprintf(tw, "Average fare:\t%.2f\n", sum.AverageFare)
	fmt.Fprintf(tw, "Rides per minute:\t%.2f\n", sum.RidesPerMinute)
	if len(sum.Taxis) > 1 {
		fmt.Fprintf(tw, "Revenue per taxi:\t%.2f ± %.2f\n", sum.TaxiRevenueMean, sum.TaxiRevenueStdDev)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(sum.Taxis) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tRides\tDistance (km)\tRevenue\tAverage fare\t")
	for _, t := range sum.Taxis {
		fmt.Fprintf(tw, "%d\t%d\t%.1f\t%.2f\t%.2f\t\n", t.TaxiID, t.RidesCompleted, t.TotalDistance, t.TotalRevenue, t.AverageFare)
	}
	return tw.Flush()
}

func clock(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%02d:%02d:%02d", h, m, d/time.Second)
}

// WriteJSON writes the summary to w in JSON format.
func WriteJSON(w io.Writer, sum stats.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

// WriteYAML writes the summary to w in YAML format.
func WriteYAML(w io.Writer, sum stats.Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(sum); err != nil {
		return err
	}
	return enc.Close()
}

// WriteCSV writes the per-taxi breakdown to w in CSV format.
func WriteCSV(w io.Writer, sum stats.Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"taxi_id", "rides_completed", "distance_km", "revenue", "average_fare"}); err != nil {
		return err
	}
	for _, t := range sum.Taxis {
		rec := []string{
			strconv.Itoa(t.TaxiID),
			strconv.FormatInt(t.RidesCompleted, 10),
			strconv.FormatFloat(t.TotalDistance, 'f', -1, 64),
			strconv.FormatFloat(t.TotalRevenue, 'f', -1, 64),
			strconv.FormatFloat(t.AverageFare, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteChart renders an HTML page with a revenue per taxi bar chart.
func WriteChart(w io.Writer, sum stats.Summary) error {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Revenue per taxi",
			Subtitle: fmt.Sprintf("%d rides, %.2f total", sum.RidesCompleted, sum.TotalRevenue),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Taxi"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Revenue"}),
	)

	xAxis := make([]string, 0, len(sum.Taxis))
	revenue := make([]opts.BarData, 0, len(sum.Taxis))
	rides := make([]opts.BarData, 0, len(sum.Taxis))
	for _, t := range sum.Taxis {
		xAxis = append(xAxis, "#"+strconv.Itoa(t.TaxiID))
		revenue = append(revenue, opts.BarData{Value: t.TotalRevenue})
		rides = append(rides, opts.BarData{Value: t.RidesCompleted})
	}
	bar.SetXAxis(xAxis).
		AddSeries("Revenue", revenue).
		AddSeries("Rides", rides)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Writer selects a writer from a file extension: .json, .yaml/.yml, .csv,
// .html/.htm or .txt.
func Writer(path string) (func(io.Writer, stats.Summary) error, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return WriteJSON, nil
	case ".yaml", ".yml":
		return WriteYAML, nil
	case ".csv":
		return WriteCSV, nil
	case ".html", ".htm":
		return WriteChart, nil
	case ".txt":
		return WriteText, nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", filepath.Ext(path))
	}
}

// WriteFile writes the summary to path in the format implied by its extension.
func WriteFile(path string, sum stats.Summary) (err error) {
	write, err := Writer(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f, sum)
}
