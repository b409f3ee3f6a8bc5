package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/referral-cli/internal/model"
	"github.com/sells-group/referral-cli/internal/store"
)

// decisionRow is the flat form of a decision used for table and CSV output.
type decisionRow struct {
	ReferralID     string  `csv:"referral_id"`
	Recommendation string  `csv:"recommendation"`
	WeightedScore  float64 `csv:"weighted_score"`
	Confidence     float64 `csv:"confidence"`
	Gate           string  `csv:"gate"`
	Geographic     float64 `csv:"geographic"`
	Insurance      float64 `csv:"insurance"`
	Clinical       float64 `csv:"clinical"`
	Capacity       float64 `csv:"capacity"`
	Quality        float64 `csv:"quality"`
	Reasons        string  `csv:"reasons"`
}

func newDecisionRow(d *model.ReferralDecisionFactors) decisionRow {
	row := decisionRow{
		ReferralID:     d.ReferralID,
		Recommendation: string(d.Overall.Recommendation),
		WeightedScore:  d.Overall.WeightedScore,
		Confidence:     d.Overall.Confidence,
		Geographic:     d.Geographic.Score,
		Insurance:      d.Insurance.Score,
		Clinical:       d.Clinical.Score,
		Capacity:       d.Capacity.Score,
		Quality:        d.Quality.Score,
	}
	if d.Gate != nil {
		row.Gate = string(d.Gate.Gate)
	}
	reasons := make([]string, len(d.Overall.Reasons))
	for i, r := range d.Overall.Reasons {
		reasons[i] = string(r)
	}
	row.Reasons = strings.Join(reasons, ";")
	return row
}

// writeDecisions writes decisions as json, table or csv.
func writeDecisions(out io.Writer, format string, ds []*model.ReferralDecisionFactors) error {
	switch format {
	case "json":
		return writeJSON(out, ds)
	case "table":
		formatDecisionTable(out, ds)
		return nil
	case "csv":
		rows := make([]decisionRow, len(ds))
		for i, d := range ds {
			rows[i] = newDecisionRow(d)
		}
		w := csv.NewWriter(out)
		if err := csvutil.NewEncoder(w).Encode(rows); err != nil {
			return eris.Wrap(err, "write csv")
		}
		w.Flush()
		return eris.Wrap(w.Error(), "write csv")
	}
	return eris.Errorf("unknown output format %q (want json, table or csv)", format)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write json")
}

func formatDecisionTable(out io.Writer, ds []*model.ReferralDecisionFactors) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REFERRAL\tDECISION\tSCORE\tCONFIDENCE\tGATE\tGEO\tINS\tCLIN\tCAP\tQUAL\tREASONS")
	_, _ = fmt.Fprintln(w, "--------\t--------\t-----\t----------\t----\t---\t---\t----\t---\t----\t-------")

	for _, d := range ds {
		r := newDecisionRow(d)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\t%.0f\t%.0f\t%.0f\t%.0f\t%.0f\t%s\n",
			r.ReferralID, r.Recommendation, r.WeightedScore, r.Confidence, dash(r.Gate),
			r.Geographic, r.Insurance, r.Clinical, r.Capacity, r.Quality, dash(r.Reasons),
		)
	}
	_ = w.Flush()
}

func formatConfigurationList(out io.Writer, cfgs []model.ReferralConfiguration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tVERSION\tTHRESHOLD\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t---------\t-------")

	for _, c := range cfgs {
		threshold := ""
		if c.Scoring != nil {
			threshold = fmt.Sprintf("%.0f", c.Scoring.MinimumAcceptanceScore)
		}
		name := c.Name
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			c.ID, name, c.Version, threshold, c.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatDecisionHistory(out io.Writer, recs []store.DecisionRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCONFIG\tVERSION\tDECISION\tSCORE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t-----\t-------")

	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.2f\t%s\n",
			truncateID(r.ID), r.ConfigurationID, r.ConfigurationVersion,
			r.Recommendation, r.WeightedScore, r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
