package loader

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/referral-cli/internal/model"
)

// referralRow is one flat spreadsheet row. Numeric columns stay strings so
// that blank cells can be told apart from zero.
type referralRow struct {
	ID                   string `csv:"referralId"`
	PatientID            string `csv:"patientId"`
	Diagnosis            string `csv:"diagnosis"`
	Services             string `csv:"services"`
	EpisodeLengthDays    string `csv:"episodeLengthDays"`
	Urgency              string `csv:"urgency"`
	InsuranceProvider    string `csv:"insuranceProvider"`
	InsuranceType        string `csv:"insuranceType"`
	Copay                string `csv:"copay"`
	PriorAuthObtained    string `csv:"priorAuthObtained"`
	ReferralSource       string `csv:"referralSource"`
	SourceRating         string `csv:"sourceRating"`
	NPIVerified          string `csv:"npiVerified"`
	FaceToFaceDocumented string `csv:"faceToFaceDocumented"`
	ZipCode              string `csv:"zipCode"`
	Address              string `csv:"address"`
	Latitude             string `csv:"latitude"`
	Longitude            string `csv:"longitude"`
	DistanceMiles        string `csv:"distanceMiles"`
	DailyReferrals       string `csv:"dailyReferrals"`
	WeeklyReferrals      string `csv:"weeklyReferrals"`
	NurseCaseload        string `csv:"nurseCaseload"`
	TherapistCaseload    string `csv:"therapistCaseload"`
	ReceivedAt           string `csv:"receivedAt"`
}

func readCSV(path string) ([]model.ReferralRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "loader: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	return decodeRows(r)
}

func readXLSX(path string) ([]model.ReferralRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "loader: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("loader: %s has no sheets", path)
	}
	return decodeRows(&sheetReader{rows: f.Sheets[0].Rows})
}

// sheetReader adapts an xlsx sheet to csvutil.Reader. Rows are padded to
// the header width and blank rows are skipped.
type sheetReader struct {
	rows  []*xlsx.Row
	next  int
	width int
}

func (s *sheetReader) Read() ([]string, error) {
	for s.next < len(s.rows) {
		row := s.rows[s.next]
		s.next++

		cells := make([]string, len(row.Cells))
		blank := true
		for i, c := range row.Cells {
			cells[i] = strings.TrimSpace(c.String())
			if cells[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		if s.width == 0 {
			s.width = len(cells)
			return cells, nil
		}
		if len(cells) < s.width {
			cells = append(cells, make([]string, s.width-len(cells))...)
		}
		return cells[:s.width], nil
	}
	return nil, io.EOF
}

func decodeRows(r csvutil.Reader) ([]model.ReferralRecord, error) {
	dec, err := csvutil.NewDecoder(r)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "loader: read header")
	}

	var out []model.ReferralRecord
	for line := 2; ; line++ {
		var row referralRow
		if err := dec.Decode(&row); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "loader: row %d", line)
		}
		rec, err := row.record()
		if err != nil {
			return nil, eris.Wrapf(err, "loader: row %d", line)
		}
		out = append(out, rec)
	}
	return out, nil
}

// record converts a row into a referral. Blank optional cells stay unset.
func (r referralRow) record() (model.ReferralRecord, error) {
	p := &cellParser{}
	rec := model.ReferralRecord{
		ID:                strings.TrimSpace(r.ID),
		PatientID:         strings.TrimSpace(r.PatientID),
		Diagnosis:         strings.TrimSpace(r.Diagnosis),
		RequestedServices: splitList(r.Services),
		EpisodeLengthDays: p.intPtr("episodeLengthDays", r.EpisodeLengthDays),
		Insurance: model.Insurance{
			Provider:          strings.TrimSpace(r.InsuranceProvider),
			Type:              insuranceType(r.InsuranceType),
			Copay:             p.floatPtr("copay", r.Copay),
			PriorAuthObtained: p.boolean("priorAuthObtained", r.PriorAuthObtained),
		},
		Source: model.Source{
			Name:                 strings.TrimSpace(r.ReferralSource),
			Rating:               p.floatPtr("sourceRating", r.SourceRating),
			NPIVerified:          p.boolean("npiVerified", r.NPIVerified),
			FaceToFaceDocumented: p.boolean("faceToFaceDocumented", r.FaceToFaceDocumented),
		},
		Location: model.Location{
			ZipCode:       strings.TrimSpace(r.ZipCode),
			Address:       strings.TrimSpace(r.Address),
			Latitude:      p.floatPtr("latitude", r.Latitude),
			Longitude:     p.floatPtr("longitude", r.Longitude),
			DistanceMiles: p.floatPtr("distanceMiles", r.DistanceMiles),
		},
	}

	u, err := model.ParseUrgency(r.Urgency)
	if err != nil {
		return rec, eris.Wrap(err, "urgency")
	}
	rec.Urgency = u

	if anySet(r.DailyReferrals, r.WeeklyReferrals, r.NurseCaseload, r.TherapistCaseload) {
		rec.TeamLoad = &model.TeamLoad{
			DailyReferrals:    p.integer("dailyReferrals", r.DailyReferrals),
			WeeklyReferrals:   p.integer("weeklyReferrals", r.WeeklyReferrals),
			NurseCaseload:     p.integer("nurseCaseload", r.NurseCaseload),
			TherapistCaseload: p.integer("therapistCaseload", r.TherapistCaseload),
		}
	}

	if s := strings.TrimSpace(r.ReceivedAt); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return rec, eris.Wrapf(err, "receivedAt %q", s)
		}
		rec.ReceivedAt = t
	}

	return rec, p.err
}

// cellParser parses optional cells and keeps the first failure.
type cellParser struct{ err error }

func (p *cellParser) fail(column, value string, err error) {
	if p.err == nil {
		p.err = eris.Wrapf(err, "column %s value %q", column, value)
	}
}

func (p *cellParser) floatPtr(column, s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	if err != nil {
		p.fail(column, s, err)
		return nil
	}
	return &v
}

func (p *cellParser) intPtr(column, s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v := p.integer(column, s)
	return &v
}

func (p *cellParser) integer(column, s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	// Spreadsheets often store whole numbers as "12.0".
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(column, s, err)
		return 0
	}
	return int(f)
}

func (p *cellParser) boolean(column, s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "n":
		return false
	case "1", "true", "yes", "y":
		return true
	}
	p.fail(column, s, eris.New("not a boolean"))
	return false
}

func insuranceType(s string) model.InsuranceType {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return model.InsuranceType(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func anySet(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.New("unrecognized time format")
}
