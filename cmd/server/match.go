package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-print-rfq/internal/matching"
	"github.com/pesio-ai/be-print-rfq/internal/service"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank the vendor pool for a job without creating a quote request",
	RunE:  runMatch,
}

func init() {
	matchCmd.Flags().String("job", "", "job ID to match (required)")
	matchCmd.Flags().Int("limit", 0, "shortlist size (default rfq.default_vendor_limit)")
	matchCmd.Flags().Bool("json", false, "print the preview as JSON")
	_ = matchCmd.MarkFlagRequired("job")
}

func runMatch(cmd *cobra.Command, _ []string) error {
	jobID, _ := cmd.Flags().GetString("job")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	ctx := cmd.Context()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	repos := newRepositories(db)
	svc := service.NewRFQService(repos.jobs, repos.vendors, repos.quotes, repos.events,
		serviceOptions(cfg), log.Component("rfq"))

	preview, err := svc.MatchVendors(ctx, jobID, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(preview)
	}
	return printPreview(out, preview)
}

// printPreview renders the ranking as a table. Shortlisted vendors are
// starred.
func printPreview(w io.Writer, p *service.VendorMatchPreview) error {
	fmt.Fprintf(w, "Job %s requires: %s\n\n", p.JobID, strings.Join(p.RequiredServices.Strings(), ", "))

	shortlisted := make(map[string]bool, len(p.Shortlist))
	for _, m := range p.Shortlist {
		shortlisted[m.Vendor.ID] = true
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tVENDOR\tSCORE\tFULFIL\tLEAD\tMISSING")
	for _, m := range p.Ranked {
		mark := ""
		if shortlisted[m.Vendor.ID] {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%t\t%s\t%s\n",
			mark, m.Vendor.Name, m.Score, m.CanFulfill, leadTime(m), missing(m))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(p.Shortlist) == 0 {
		fmt.Fprintln(w, "\nNo vendor qualifies for the shortlist.")
	}
	return nil
}

func leadTime(m matching.Match) string {
	if m.EstimatedLeadTimeDays == nil {
		return "-"
	}
	return strconv.Itoa(*m.EstimatedLeadTimeDays) + "d"
}

func missing(m matching.Match) string {
	if len(m.MissingServices) == 0 {
		return "-"
	}
	labels := make([]string, 0, len(m.MissingServices))
	for _, t := range m.MissingServices {
		labels = append(labels, t.Label())
	}
	return strings.Join(labels, ", ")
}
