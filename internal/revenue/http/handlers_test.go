package revenuehttp

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/revenue"
)

type stubAuth struct {
	principal auth.Principal
	err       error
}

func (s stubAuth) Authenticate(context.Context, string) (auth.Principal, error) {
	return s.principal, s.err
}

type stubService struct {
	dashboard revenue.Dashboard
	err       error
	query     revenue.Query
	request   revenue.CalculateRequest
	actor     auth.Principal
	filter    revenue.CalculationFilter
}

func (s *stubService) Dashboard(_ context.Context, q revenue.Query) (revenue.Dashboard, error) {
	s.query = q
	return s.dashboard, s.err
}

func (s *stubService) Calculate(_ context.Context, req revenue.CalculateRequest, actor auth.Principal) (revenue.CalculateResult, error) {
	s.request = req
	s.actor = actor
	if s.err != nil {
		return revenue.CalculateResult{}, s.err
	}
	return revenue.CalculateResult{Calculation: revenue.Calculation{BusinessID: req.BusinessID}}, nil
}

func (s *stubService) ListCalculations(_ context.Context, f revenue.CalculationFilter) (revenue.CalculationPage, error) {
	s.filter = f
	return revenue.CalculationPage{Calculations: []revenue.SavedCalculation{}}, s.err
}

func sampleDashboard() revenue.Dashboard {
	return revenue.Dashboard{
		Buckets: []revenue.Bucket{
			{Month: "2025-01", Label: "2025-01", Revenue: 200000, Cost: 120000, Profit: 60000, ProfitRate: 30, Count: 1},
			{Month: "2025-02", Label: "2025-02"},
		},
		Summary:     revenue.Summary{AvgProfit: 30000, AvgProfitRate: 30, TotalRevenue: 200000, TotalProfit: 60000},
		Granularity: revenue.Monthly,
		Mode:        revenue.ModeYear,
	}
}

func newRouter(a stubAuth, svc Service) http.Handler {
	h := NewHandler(nil, svc, auth.Middleware{Service: a})
	r := chi.NewRouter()
	r.Route("/api/dashboard", h.MountDashboard)
	r.Route("/api/revenue", h.MountCalculate)
	return r
}

func request(method, target, body string, token bool) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token {
		req.Header.Set("Authorization", "Bearer token")
	}
	return req
}

var general = stubAuth{principal: auth.Principal{UserID: "u-1", PermissionLevel: auth.LevelGeneral}}

func TestDashboardRequiresToken(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(general, &stubService{}).ServeHTTP(rr, request(http.MethodGet, "/api/dashboard/revenue", "", false))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestDashboardRejectsInvalidToken(t *testing.T) {
	rr := httptest.NewRecorder()
	a := stubAuth{err: httpx.ErrUnauthorized}
	newRouter(a, &stubService{}).ServeHTTP(rr, request(http.MethodGet, "/api/dashboard/revenue", "", true))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDashboardResponse(t *testing.T) {
	svc := &stubService{dashboard: sampleDashboard()}
	rr := httptest.NewRecorder()
	newRouter(general, svc).ServeHTTP(rr, request(http.MethodGet,
		"/api/dashboard/revenue?year=2025&office=%EC%84%9C%EC%9A%B8%EC%8B%9C&manufacturer=ecosense&salesOffice=%EB%B6%80%EC%82%B0&progressStatus=done&months=x", "", true))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Success bool             `json:"success"`
		Data    []revenue.Bucket `json:"data"`
		Summary revenue.Summary  `json:"summary"`
		Mode    string           `json:"mode"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 60000.0, body.Summary.TotalProfit)
	assert.Equal(t, "year", body.Mode)

	assert.Equal(t, revenue.Query{Year: 2025, Office: "서울시", Manufacturer: "ecosense", SalesOffice: "부산", ProgressStatus: "done"}, svc.query)
}

func TestDashboardFailureKeepsShape(t *testing.T) {
	svc := &stubService{err: errors.New("db down")}
	rr := httptest.NewRecorder()
	newRouter(general, svc).ServeHTTP(rr, request(http.MethodGet, "/api/dashboard/revenue", "", true))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, []any{}, body["data"])
	assert.NotEmpty(t, body["error"])
	summary, ok := body["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.0, summary["totalRevenue"])
	assert.NotContains(t, rr.Body.String(), "db down")
}

func TestDashboardRejectsOversizedMonths(t *testing.T) {
	for _, months := range []string{"100000000", "121", "-1"} {
		svc := &stubService{dashboard: sampleDashboard()}
		rr := httptest.NewRecorder()
		newRouter(general, svc).ServeHTTP(rr, request(http.MethodGet, "/api/dashboard/revenue?months="+months, "", true))

		require.Equal(t, http.StatusBadRequest, rr.Code, months)
		assert.Zero(t, svc.query, "service must not run for months=%s", months)
		assert.Contains(t, rr.Body.String(), "months")
	}

	svc := &stubService{dashboard: sampleDashboard()}
	rr := httptest.NewRecorder()
	newRouter(general, svc).ServeHTTP(rr, request(http.MethodGet, "/api/dashboard/revenue?months=120", "", true))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 120, svc.query.Months)
}

func TestDashboardCSVExport(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(general, &stubService{dashboard: sampleDashboard()}).ServeHTTP(rr,
		request(http.MethodGet, "/api/dashboard/revenue/export.csv?year=2025", "", true))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), ".csv")
	payload := bytes.TrimPrefix(rr.Body.Bytes(), []byte("\xEF\xBB\xBF"))
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "기간", records[0][0])
	assert.Equal(t, []string{"2025-01", "2025-01", "200000.00", "120000.00", "60000.00", "30.00", "0.00", "", "", "1"}, records[1])
	assert.Contains(t, rr.Body.String(), "200,000원")
}

func TestDashboardXLSXExport(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter(general, &stubService{dashboard: sampleDashboard()}).ServeHTTP(rr,
		request(http.MethodGet, "/api/dashboard/revenue/export.xlsx", "", true))

	require.Equal(t, http.StatusOK, rr.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	value, err := f.GetCellValue("매출 현황", "A2")
	require.NoError(t, err)
	assert.Equal(t, "2025-01", value)
}

func TestCalculatePassesPrincipal(t *testing.T) {
	svc := &stubService{}
	rr := httptest.NewRecorder()
	newRouter(general, svc).ServeHTTP(rr, request(http.MethodPost, "/api/revenue/calculate", `{"business_id":"b1","save_result":false}`, true))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "b1", svc.request.BusinessID)
	require.NotNil(t, svc.request.SaveResult)
	assert.False(t, *svc.request.SaveResult)
	assert.Equal(t, "u-1", svc.actor.UserID)
	assert.Contains(t, rr.Body.String(), "매출 계산이 완료되었습니다.")
}

func TestCalculateNotFound(t *testing.T) {
	svc := &stubService{err: httpx.ErrNotFound}
	rr := httptest.NewRecorder()
	newRouter(general, svc).ServeHTTP(rr, request(http.MethodPost, "/api/revenue/calculate", `{"business_id":"nope"}`, true))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListCalculationsParsesFilters(t *testing.T) {
	svc := &stubService{}
	rr := httptest.NewRecorder()
	newRouter(general, svc).ServeHTTP(rr, request(http.MethodGet,
		"/api/revenue/calculate?business_id=b1&start_date=2025-01-01&end_date=2025-01-31&limit=20&offset=40", "", true))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "b1", svc.filter.BusinessID)
	assert.Equal(t, 20, svc.filter.Limit)
	assert.Equal(t, 40, svc.filter.Offset)
	require.NotNil(t, svc.filter.StartDate)
	require.NotNil(t, svc.filter.EndDate)
	assert.Equal(t, 31, svc.filter.EndDate.Day())

	rr = httptest.NewRecorder()
	newRouter(general, svc).ServeHTTP(rr, request(http.MethodGet, "/api/revenue/calculate?start_date=yesterday", "", true))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
