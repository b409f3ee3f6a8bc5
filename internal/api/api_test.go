package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/referral-cli/internal/engine"
	"github.com/sells-group/referral-cli/internal/intake"
	"github.com/sells-group/referral-cli/internal/metrics"
	"github.com/sells-group/referral-cli/internal/model"
	"github.com/sells-group/referral-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const configJSON = `{
  "id": "cfg-tampa",
  "name": "Tampa Home Health",
  "geographic": {"maxTravelDistance": 50, "excludedZipCodes": ["33999"]},
  "insurance": {"acceptMedicare": true, "acceptMedicaid": false, "acceptCommercial": true,
                "acceptManagedCare": false, "acceptPrivatePay": false, "minimumCopay": 0, "maximumCopay": 40},
  "clinical": {"acceptedDiagnoses": ["I10"], "minEpisodeLength": 30, "maxEpisodeLength": 90,
               "urgencyHandling": {"routine": "accept", "urgent": "accept", "stat": "review"}},
  "capacity": {"maxDailyReferrals": 0, "maxWeeklyReferrals": 0, "nurseCaseloadLimit": 20,
               "therapistCaseloadLimit": 10, "acceptWeekends": true, "acceptHolidays": true},
  "quality": {"minimumHospitalRating": 3, "requireNpiVerification": false, "requireFaceToFace": false},
  "notifications": {"notifyMSWOnReject": true, "notifyMSWOnReview": false, "notifyMSWOnAccept": false, "escalationTimeHours": 24},
  "scoring": {"geographicWeight": 0.2, "insuranceWeight": 0.25, "clinicalWeight": 0.3,
              "capacityWeight": 0.15, "qualityWeight": 0.1, "minimumAcceptanceScore": 75}
}`

const configYAML = `
id: cfg-yaml
name: YAML Agency
geographic: {maxTravelDistance: 25}
insurance: {acceptMedicare: true}
clinical: {}
capacity: {acceptWeekends: true, acceptHolidays: true}
quality: {minimumHospitalRating: 2}
notifications: {escalationTimeHours: 8}
scoring:
  geographicWeight: 0.2
  insuranceWeight: 0.2
  clinicalWeight: 0.2
  capacityWeight: 0.2
  qualityWeight: 0.2
  minimumAcceptanceScore: 70
`

const referralJSON = `{
  "id": "ref-1",
  "diagnosis": "I10",
  "episodeLengthDays": 60,
  "urgency": "routine",
  "insurance": {"provider": "Medicare", "type": "medicare"},
  "source": {"name": "Tampa General", "rating": 5},
  "location": {"zipCode": "33606", "distanceMiles": 0},
  "teamLoad": {"dailyReferrals": 0, "weeklyReferrals": 0, "nurseCaseload": 0, "therapistCaseload": 0},
  "receivedAt": "2026-10-14T10:00:00Z"
}`

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	reg := prometheus.NewRegistry()
	svc := intake.NewService(engine.New(), st, intake.WithMetrics(metrics.New(reg)))
	return NewRouter(svc, Options{Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})})
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func saveConfig(t *testing.T, h http.Handler) {
	t.Helper()
	w := do(t, h, http.MethodPost, "/v1/configurations", "application/json", configJSON)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSaveConfiguration_Created(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/v1/configurations", "application/json", configJSON)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp saveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "cfg-tampa", resp.Config.ID)
	assert.Equal(t, 1, resp.Config.Version)
}

func TestSaveConfiguration_YAML(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/v1/configurations", "application/yaml", configYAML)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/configurations/cfg-yaml", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cfg model.ReferralConfiguration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.Equal(t, "YAML Agency", cfg.Name)
}

func TestSaveConfiguration_Unprocessable(t *testing.T) {
	h := newTestServer(t)
	bad := strings.Replace(configJSON, `"qualityWeight": 0.1`, `"qualityWeight": 0.4`, 1)

	w := do(t, h, http.MethodPost, "/v1/configurations", "application/json", bad)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "configuration invalid", resp.Error)
	require.NotEmpty(t, resp.Fields)
	assert.Equal(t, engine.KindWeightSum, resp.Fields[0].Kind)

	w = do(t, h, http.MethodGet, "/v1/configurations/cfg-tampa", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveConfiguration_NaNThresholdRejected(t *testing.T) {
	h := newTestServer(t)
	bad := strings.Replace(configYAML, "minimumAcceptanceScore: 70", "minimumAcceptanceScore: .nan", 1)
	require.NotEqual(t, configYAML, bad)

	w := do(t, h, http.MethodPost, "/v1/configurations", "application/yaml", bad)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	var fields []string
	for _, f := range resp.Fields {
		fields = append(fields, f.Field)
	}
	assert.Contains(t, fields, "scoring.minimumAcceptanceScore")
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]float64{"score": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestSaveConfiguration_UnknownField(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/v1/configurations", "application/json", `{"id":"x","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidateConfiguration(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/v1/configurations/validate", "application/json", configJSON)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"valid":true}`, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/configurations/cfg-tampa", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "validate must not store")
}

func TestListConfigurations(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/v1/configurations", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	saveConfig(t, h)
	saveConfig(t, h)
	w = do(t, h, http.MethodGet, "/v1/configurations?limit=10", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.ReferralConfiguration
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Version)
}

func TestEvaluate_StoredConfiguration(t *testing.T) {
	h := newTestServer(t)
	saveConfig(t, h)

	body := `{"configId":"cfg-tampa","referral":` + referralJSON + `}`
	w := do(t, h, http.MethodPost, "/v1/referrals/evaluate", "application/json", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var d model.ReferralDecisionFactors
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "ref-1", d.ReferralID)
	assert.Equal(t, model.RecommendationAccept, d.Overall.Recommendation)
	assert.Equal(t, 100.0, d.Overall.WeightedScore)

	w = do(t, h, http.MethodGet, "/v1/referrals/ref-1/decisions", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var recs []store.DecisionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "cfg-tampa", recs[0].ConfigurationID)
}

func TestEvaluate_DryRunInline(t *testing.T) {
	h := newTestServer(t)

	body := `{"dryRun":true,"config":` + configJSON + `,"referral":` + referralJSON + `}`
	w := do(t, h, http.MethodPost, "/v1/referrals/evaluate", "application/json", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/v1/referrals/ref-1/decisions", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestEvaluate_Errors(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"no configuration", `{"referral":` + referralJSON + `}`, http.StatusBadRequest},
		{"unknown configuration", `{"configId":"nope","referral":` + referralJSON + `}`, http.StatusNotFound},
		{"invalid inline", `{"config":{"id":"x","name":"x"},"referral":` + referralJSON + `}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/v1/referrals/evaluate", "application/json", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestEvaluateBatch_PreservesOrder(t *testing.T) {
	h := newTestServer(t)
	saveConfig(t, h)

	second := strings.Replace(referralJSON, `"ref-1"`, `"ref-2"`, 1)
	second = strings.Replace(second, `"33606"`, `"33999"`, 1)
	third := strings.Replace(referralJSON, `"ref-1"`, `"ref-3"`, 1)

	var buf bytes.Buffer
	buf.WriteString(`{"configId":"cfg-tampa","referrals":[`)
	buf.WriteString(referralJSON + "," + second + "," + third)
	buf.WriteString(`]}`)

	w := do(t, h, http.MethodPost, "/v1/referrals/batch", "application/json", buf.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out []model.ReferralDecisionFactors
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 3)
	assert.Equal(t, "ref-1", out[0].ReferralID)
	assert.Equal(t, "ref-2", out[1].ReferralID)
	assert.Equal(t, "ref-3", out[2].ReferralID)
	assert.Equal(t, model.RecommendationReject, out[1].Overall.Recommendation)
	require.NotNil(t, out[1].Gate)
	assert.Equal(t, model.GateExcludedZipCode, out[1].Gate.Gate)
}

func TestEvaluateBatch_Empty(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodPost, "/v1/referrals/batch", "application/json", `{"configId":"cfg-tampa","referrals":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)
	saveConfig(t, h)
	body := `{"configId":"cfg-tampa","referral":` + referralJSON + `}`
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/referrals/evaluate", "application/json", body).Code)

	w := do(t, h, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `referral_decision_outcomes_total{gate="none",recommendation="accept"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/referrals/evaluate", http.NoBody)
	req.Header.Set("Origin", "https://intake.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
