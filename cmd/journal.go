package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/taxidispatch/config"
	"github.com/kilianp07/taxidispatch/core/journal"
	"github.com/kilianp07/taxidispatch/core/model"
)

type journalFlags struct {
	kind    string
	taxi    int
	request int64
	limit   int
	since   time.Duration
	asJSON  bool
}

var jf journalFlags

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the persisted ride history",
	RunE:  runJournal,
}

func init() {
	f := journalCmd.Flags()
	f.StringVar(&jf.kind, "kind", "", "event kind (order_created, order_assigned, order_failed, ride_started, ride_completed)")
	f.IntVar(&jf.taxi, "taxi", 0, "taxi id")
	f.Int64Var(&jf.request, "request", 0, "request id")
	f.IntVar(&jf.limit, "limit", 50, "keep only the most recent N events (0 = all)")
	f.DurationVar(&jf.since, "since", 0, "only events newer than this duration")
	f.BoolVar(&jf.asJSON, "json", false, "print events as JSON lines")
	rootCmd.AddCommand(journalCmd)
}

func buildQuery(f journalFlags, now time.Time) (journal.Query, error) {
	q := journal.Query{TaxiID: f.taxi, RequestID: f.request, Limit: f.limit}
	if f.kind != "" {
		k, err := model.ParseEventKind(f.kind)
		if err != nil {
			return q, err
		}
		q.Kind = k
	}
	if f.since > 0 {
		q.Start = now.Add(-f.since)
	}
	return q, nil
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("journal is not enabled in the configuration")
	}
	q, err := buildQuery(jf, time.Now())
	if err != nil {
		return err
	}
	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jf.asJSON {
		enc := json.NewEncoder(out)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(out, "%s  %-15s  req=%-5d taxi=%-3d %s\n",
			ev.Timestamp.Format(time.RFC3339), ev.Kind, ev.RequestID, ev.TaxiID, ev.Description)
	}
	return nil
}
