package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

type stubAuth struct {
	principal auth.Principal
}

func (s stubAuth) Authenticate(context.Context, string) (auth.Principal, error) {
	return s.principal, nil
}

type stubManager struct {
	Manager
	government  []GovernmentPrice
	created     *CommissionInput
	deactivated string
	actor       Actor
}

func (s *stubManager) ListGovernment(context.Context, ListFilter) ([]GovernmentPrice, error) {
	return s.government, nil
}

func (s *stubManager) CreateCommission(_ context.Context, in CommissionInput, actor Actor) (Saved[CommissionSetting], error) {
	if err := in.Validate(); err != nil {
		return Saved[CommissionSetting]{}, err
	}
	s.created = &in
	s.actor = actor
	return Saved[CommissionSetting]{Row: CommissionSetting{SalesOffice: in.SalesOffice, CommissionType: in.CommissionType}, IsUpdate: true}, nil
}

func (s *stubManager) Deactivate(_ context.Context, _ Table, id string, _ Actor) error {
	if id == "" {
		return httpx.ErrValidation
	}
	s.deactivated = id
	return nil
}

func newTestRouter(level int, m Manager) http.Handler {
	guard := auth.Middleware{Service: stubAuth{principal: auth.Principal{UserID: "u-1", Name: "관리자", PermissionLevel: level}}}
	r := chi.NewRouter()
	r.Route("/api/revenue", NewHandler(nil, m, guard).MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListRequiresManagerLevel(t *testing.T) {
	m := &stubManager{}
	rec := do(t, newTestRouter(auth.LevelGeneral, m), http.MethodGet, "/api/revenue/government-pricing", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListGovernmentPricing(t *testing.T) {
	m := &stubManager{government: []GovernmentPrice{{EquipmentType: business.PHMeter, OfficialPrice: 100000}}}
	rec := do(t, newTestRouter(auth.LevelManager, m), http.MethodGet, "/api/revenue/government-pricing", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Pricing    []GovernmentPrice `json:"pricing"`
			TotalCount int               `json:"total_count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Data.TotalCount)
	assert.Equal(t, business.PHMeter, body.Data.Pricing[0].EquipmentType)
}

func TestCreateRequiresAdminLevel(t *testing.T) {
	m := &stubManager{}
	rec := do(t, newTestRouter(auth.LevelManager, m), http.MethodPost, "/api/revenue/sales-office-settings",
		`{"sales_office":"부산","commission_type":"per_unit","commission_per_unit":30000,"effective_from":"2025-01-01"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, m.created)
}

func TestCreateCommissionSetting(t *testing.T) {
	m := &stubManager{}
	rec := do(t, newTestRouter(auth.LevelAdmin, m), http.MethodPost, "/api/revenue/sales-office-settings",
		`{"sales_office":"부산","commission_type":"per_unit","commission_per_unit":30000,"effective_from":"2025-01-01"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, m.created)
	assert.Equal(t, "u-1", m.actor.UserID)
	assert.Contains(t, rec.Body.String(), "영업점 비용 설정이 성공적으로 수정되었습니다.")
}

func TestCreateCommissionRequiresPercentage(t *testing.T) {
	m := &stubManager{}
	rec := do(t, newTestRouter(auth.LevelAdmin, m), http.MethodPost, "/api/revenue/sales-office-settings",
		`{"sales_office":"부산","commission_type":"percentage","effective_from":"2025-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "commission_percentage")
}

func TestDeleteByPathAndBody(t *testing.T) {
	m := &stubManager{}
	router := newTestRouter(auth.LevelAdmin, m)

	rec := do(t, router, http.MethodDelete, "/api/revenue/manufacturer-pricing/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", m.deactivated)
	assert.Contains(t, rec.Body.String(), "제조사별 원가가 성공적으로 삭제되었습니다.")

	rec = do(t, router, http.MethodDelete, "/api/revenue/survey-costs", `{"id":"def"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "def", m.deactivated)
}

func TestSurveyInputRejectsUnknownType(t *testing.T) {
	cost := 1000.0
	err := SurveyInput{SurveyType: "follow_up", SurveyName: "추가", BaseCost: &cost, EffectiveFrom: "2025-01-01"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.ErrorIs(t, err, ErrInvalidSurveyType)
}

func TestParseWindow(t *testing.T) {
	from, to, err := parseWindow("2025-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, day("2025-01-01"), from)
	assert.Nil(t, to)

	_, _, err = parseWindow("2025-02-01", "2025-01-01")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestSubjectParticle(t *testing.T) {
	assert.Equal(t, "가", subjectParticle("환경부 고시가"))
	assert.Equal(t, "이", subjectParticle("실사비용"))
	assert.Equal(t, "이", subjectParticle("영업점 비용 설정"))
}
