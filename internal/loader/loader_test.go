package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/referral-cli/internal/model"
)

const configYAML = `
id: cfg-tampa
name: Tampa Home Health
version: 2
geographic:
  maxTravelDistance: 50
  excludedZipCodes: ["33999"]
  preferredZipCodes: ["33606"]
  serviceAreas:
    - name: south tampa
      zipCodes: ["33606", "33609"]
insurance:
  acceptMedicare: true
  acceptCommercial: true
  priorAuthRequired: [Humana]
  minimumCopay: 0
  maximumCopay: 40
clinical:
  acceptedDiagnoses: [I10]
  minEpisodeLength: 30
  maxEpisodeLength: 90
  urgencyHandling:
    routine: accept
    urgent: accept
    stat: reject
capacity:
  maxDailyReferrals: 10
  maxWeeklyReferrals: 40
  nurseCaseloadLimit: 20
  acceptWeekends: false
  holidays: ["2026-12-25"]
quality:
  minimumHospitalRating: 3
  requireNpiVerification: true
notifications:
  notifyMSWOnReject: true
  escalationTimeHours: 24
scoring:
  geographicWeight: 0.2
  insuranceWeight: 0.25
  clinicalWeight: 0.3
  capacityWeight: 0.15
  qualityWeight: 0.1
  minimumAcceptanceScore: 75
  reviewBand: 12
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfiguration_YAML(t *testing.T) {
	cfg, err := LoadConfiguration(writeFile(t, "tampa.yaml", configYAML))
	require.NoError(t, err)

	assert.Equal(t, "cfg-tampa", cfg.ID)
	assert.Equal(t, 2, cfg.Version)
	require.NotNil(t, cfg.Geographic)
	assert.Equal(t, 50.0, cfg.Geographic.MaxTravelDistance)
	require.Len(t, cfg.Geographic.ServiceAreas, 1)
	assert.Equal(t, []string{"33606", "33609"}, cfg.Geographic.ServiceAreas[0].ZipCodes)
	assert.Equal(t, model.RecommendationReject, cfg.Clinical.UrgencyHandling.Stat)
	assert.True(t, cfg.Quality.RequireNPIVerification)
	assert.Equal(t, []string{"2026-12-25"}, cfg.Capacity.Holidays)
	require.NotNil(t, cfg.Scoring.ReviewBand)
	assert.Equal(t, 12.0, *cfg.Scoring.ReviewBand)
	assert.InDelta(t, 1.0, cfg.Scoring.WeightSum(), 0.0001)
}

func TestLoadConfiguration_JSON(t *testing.T) {
	doc := `{"id":"cfg-1","name":"n","geographic":{"maxTravelDistance":25},"scoring":{"geographicWeight":1}}`
	cfg, err := LoadConfiguration(writeFile(t, "cfg.json", doc))
	require.NoError(t, err)
	assert.Equal(t, "cfg-1", cfg.ID)
	assert.Equal(t, 25.0, cfg.Geographic.MaxTravelDistance)
	assert.Nil(t, cfg.Insurance)
	assert.Nil(t, cfg.Scoring.ReviewBand)
}

func TestLoadConfiguration_RejectsUnknownFields(t *testing.T) {
	_, err := LoadConfiguration(writeFile(t, "cfg.yaml", "id: a\nname: b\nscoring:\n  geoWeight: 1\n"))
	assert.Error(t, err)

	_, err = LoadConfiguration(writeFile(t, "cfg.json", `{"id":"a","bogus":true}`))
	assert.Error(t, err)
}

func TestLoadConfiguration_Errors(t *testing.T) {
	_, err := LoadConfiguration(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfiguration(writeFile(t, "cfg.toml", "id = 1"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")

	_, err = ParseConfiguration([]byte("a,b"), FormatCSV)
	assert.Error(t, err)
}

func TestLoadReferrals_JSON(t *testing.T) {
	single := `{"id":"ref-1","diagnosis":"I10","episodeLengthDays":60,"urgency":"stat",
		"insurance":{"provider":"Humana","type":"commercial","copay":20},
		"location":{"zipCode":"33606","distanceMiles":12.5},
		"teamLoad":{"dailyReferrals":3,"weeklyReferrals":9,"nurseCaseload":11,"therapistCaseload":4},
		"receivedAt":"2026-10-14T10:00:00Z"}`

	refs, err := LoadReferrals(writeFile(t, "ref.json", single))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	r := refs[0]
	assert.Equal(t, "ref-1", r.ID)
	assert.Equal(t, model.UrgencyStat, r.Urgency)
	require.NotNil(t, r.EpisodeLengthDays)
	assert.Equal(t, 60, *r.EpisodeLengthDays)
	require.NotNil(t, r.Insurance.Copay)
	assert.Equal(t, 20.0, *r.Insurance.Copay)
	require.NotNil(t, r.TeamLoad)
	assert.Equal(t, 11, r.TeamLoad.NurseCaseload)
	assert.True(t, r.ReceivedAt.Equal(time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)))

	refs, err = LoadReferrals(writeFile(t, "refs.json", `[{"id":"a"},{"id":"b"}]`))
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "b", refs[1].ID)
}

func TestLoadReferrals_YAML(t *testing.T) {
	list := `
- id: a
  diagnosis: I10
  location:
    zipCode: "33606"
- id: b
  source:
    name: Tampa General
    rating: 4.5
`
	refs, err := LoadReferrals(writeFile(t, "refs.yaml", list))
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "33606", refs[0].Location.ZipCode)
	require.NotNil(t, refs[1].Source.Rating)
	assert.Equal(t, 4.5, *refs[1].Source.Rating)

	refs, err = LoadReferrals(writeFile(t, "ref.yml", "id: solo\nurgency: urgent\n"))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, model.UrgencyUrgent, refs[0].Urgency)
}

func TestLoadReferrals_Empty(t *testing.T) {
	refs, err := LoadReferrals(writeFile(t, "empty.json", "  \n"))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

const csvHeader = "referralId,zipCode,diagnosis,services,episodeLengthDays,urgency,insuranceProvider,insuranceType,copay,referralSource,sourceRating,npiVerified,distanceMiles,dailyReferrals,nurseCaseload,receivedAt\n"

func TestLoadReferrals_CSV(t *testing.T) {
	body := csvHeader +
		"ref-1,33606,I10,skilled_nursing; physical_therapy,60,Routine,Medicare,medicare,$15,Tampa General,4.5,yes,12,2,8,2026-10-14T09:30:00Z\n" +
		"ref-2,33611,,,,,,Managed Care,,,,,,,,\n"

	refs, err := LoadReferrals(writeFile(t, "refs.csv", body))
	require.NoError(t, err)
	require.Len(t, refs, 2)

	r := refs[0]
	assert.Equal(t, "ref-1", r.ID)
	assert.Equal(t, []string{"skilled_nursing", "physical_therapy"}, r.RequestedServices)
	assert.Equal(t, model.UrgencyRoutine, r.Urgency)
	assert.Equal(t, model.InsuranceMedicare, r.Insurance.Type)
	require.NotNil(t, r.Insurance.Copay)
	assert.Equal(t, 15.0, *r.Insurance.Copay)
	assert.True(t, r.Source.NPIVerified)
	require.NotNil(t, r.Location.DistanceMiles)
	assert.Equal(t, 12.0, *r.Location.DistanceMiles)
	require.NotNil(t, r.TeamLoad)
	assert.Equal(t, 2, r.TeamLoad.DailyReferrals)
	assert.Equal(t, 8, r.TeamLoad.NurseCaseload)
	assert.Equal(t, 2026, r.ReceivedAt.Year())

	blank := refs[1]
	assert.Nil(t, blank.EpisodeLengthDays)
	assert.Nil(t, blank.Source.Rating)
	assert.Nil(t, blank.TeamLoad)
	assert.Nil(t, blank.RequestedServices)
	assert.Equal(t, model.InsuranceManagedCare, blank.Insurance.Type)
	assert.Empty(t, blank.Urgency)
}

func TestLoadReferrals_CSVBadCell(t *testing.T) {
	body := csvHeader + "ref-1,33606,I10,,sixty,,,,,,,,,,,\n"
	_, err := LoadReferrals(writeFile(t, "refs.csv", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.Contains(t, err.Error(), "episodeLengthDays")

	body = csvHeader + "ref-1,33606,I10,,,asap,,,,,,,,,,\n"
	_, err = LoadReferrals(writeFile(t, "refs.csv", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "urgency")
}

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Referrals")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			cell := row.AddCell()
			cell.SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "referrals.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestLoadReferrals_XLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"referralId", "zipCode", "insuranceType", "sourceRating", "weeklyReferrals", "latitude", "longitude"},
		{"ref-1", "33606", "medicare", "4", "12", "27.95", "-82.46"},
		{"", "", "", "", "", "", ""},
		{"ref-2", "33999"},
	})

	refs, err := LoadReferrals(path)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "ref-1", refs[0].ID)
	assert.Equal(t, model.InsuranceMedicare, refs[0].Insurance.Type)
	require.NotNil(t, refs[0].TeamLoad)
	assert.Equal(t, 12, refs[0].TeamLoad.WeeklyReferrals)
	assert.True(t, refs[0].Location.HasCoordinates())

	assert.Equal(t, "ref-2", refs[1].ID)
	assert.Equal(t, "33999", refs[1].Location.ZipCode)
	assert.Nil(t, refs[1].Source.Rating)
}

func TestDetectFormat(t *testing.T) {
	for path, want := range map[string]Format{
		"a.json": FormatJSON,
		"a.YAML": FormatYAML,
		"a.yml":  FormatYAML,
		"a.csv":  FormatCSV,
		"a.xlsx": FormatXLSX,
	} {
		got, err := DetectFormat(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := DetectFormat("a.txt")
	assert.Error(t, err)
}
