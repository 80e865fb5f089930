package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ecofacility/facility-erp/internal/auth"
	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/pricing"
)

var issued = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func record() business.Record {
	return business.Record{
		ID:           "b-1",
		Name:         "(주)청정산업",
		Address:      "경기도 화성시 남양읍",
		Manufacturer: "크린어스",
		Equipment:    business.Equipment{PHMeter: 2, Gateway: 1},
	}
}

func catalog() *pricing.Catalog {
	return pricing.NewCatalog(issued, pricing.Sources{
		Manufacturer: []pricing.ManufacturerPrice{{
			Window:        pricing.Window{EffectiveFrom: issued.AddDate(-1, 0, 0), IsActive: true},
			Manufacturer:  "cleanearth",
			EquipmentType: business.PHMeter,
			CostPrice:     230000,
		}},
	}, pricing.StandardDefaults())
}

func TestBuildEstimateUsesOfficialPrices(t *testing.T) {
	doc := Build(KindEstimate, record(), catalog(), issued)

	require.Len(t, doc.Items, 2)
	assert.Equal(t, "PH센서", doc.Items[0].Name)
	assert.Equal(t, "2000000", doc.Items[0].Amount.String())
	assert.Equal(t, "게이트웨이", doc.Items[1].Name)
	assert.Equal(t, "3600000", doc.Supply.String())
	assert.Equal(t, "360000", doc.VAT.String())
	assert.Equal(t, "3960000", doc.Total.String())
	assert.True(t, strings.HasPrefix(doc.Number, "EST-20250401-"))
}

func TestBuildPurchaseOrderUsesManufacturerCosts(t *testing.T) {
	doc := Build(KindPurchaseOrder, record(), catalog(), issued)

	assert.Equal(t, "cleanearth", doc.Manufacturer)
	assert.Equal(t, "230000", doc.Items[0].UnitPrice.String())
	assert.Equal(t, "200000", doc.Items[1].UnitPrice.String())
	assert.Equal(t, "660000", doc.Supply.String())
	assert.Equal(t, "66000", doc.VAT.String())
	assert.True(t, strings.HasPrefix(doc.Number, "PO-"))
}

func TestBuildRoundsVATToWon(t *testing.T) {
	defaults := pricing.StandardDefaults()
	defaults.OfficialPrices = map[business.EquipmentType]float64{business.PHMeter: 12345}
	rec := business.Record{Equipment: business.Equipment{PHMeter: 1}}

	doc := Build(KindEstimate, rec, pricing.NewCatalog(issued, pricing.Sources{}, defaults), issued)
	assert.Equal(t, "1235", doc.VAT.String())
	assert.Equal(t, "13580", doc.Total.String())
}

func TestBuildWithoutEquipment(t *testing.T) {
	doc := Build(KindEstimate, business.Record{}, catalog(), issued)
	assert.Empty(t, doc.Items)
	assert.True(t, doc.Total.IsZero())
}

func TestWorkbookLayout(t *testing.T) {
	data, err := Workbook(Build(KindEstimate, record(), catalog(), issued))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, []string{"견적서"}, f.GetSheetList())
	title, _ := f.GetCellValue("견적서", "A1")
	assert.Equal(t, "견적서", title)
	name, _ := f.GetCellValue("견적서", "B5")
	assert.Equal(t, "(주)청정산업", name)
	item, _ := f.GetCellValue("견적서", "B11")
	assert.Equal(t, "PH센서", item)
	total, _ := f.GetCellValue("견적서", "E16", excelize.Options{RawCellValue: true})
	assert.Equal(t, "3960000", total)
}

func TestHTMLFormatsAmounts(t *testing.T) {
	html, err := HTML(Build(KindPurchaseOrder, record(), catalog(), issued))
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>발주서</h1>")
	assert.Contains(t, html, "660,000원")
	assert.Contains(t, html, "(주)청정산업")
}

type stubBusinesses struct{ records []business.Record }

func (s stubBusinesses) ListInstalled(context.Context, business.Filter) ([]business.Record, error) {
	return s.records, nil
}

func (s stubBusinesses) Get(_ context.Context, id string) (business.Record, error) {
	for _, rec := range s.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return business.Record{}, fmt.Errorf("business %s: %w", id, httpx.ErrNotFound)
}

type stubResolver struct{}

func (stubResolver) Resolve(context.Context, time.Time) (*pricing.Catalog, error) {
	return catalog(), nil
}

type stubPDF struct {
	html string
	err  error
}

func (s *stubPDF) RenderHTML(_ context.Context, html string) ([]byte, error) {
	s.html = html
	return []byte("%PDF"), s.err
}

type stubAuth struct{}

func (stubAuth) Authenticate(context.Context, string) (auth.Principal, error) {
	return auth.Principal{UserID: "u-1", PermissionLevel: auth.LevelGeneral}, nil
}

func newTestRouter(pdf *stubPDF) http.Handler {
	svc := NewService(stubBusinesses{records: []business.Record{record()}}, stubResolver{}, pdf, nil)
	svc.WithNow(func() time.Time { return issued })
	h := NewHandler(nil, svc, auth.Middleware{Service: stubAuth{}})
	r := chi.NewRouter()
	r.Route("/api/documents", h.MountRoutes)
	return r
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerServesWorkbook(t *testing.T) {
	rr := get(newTestRouter(&stubPDF{}), "/api/documents/estimate/b-1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "filename*=UTF-8''")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "20250401.xlsx")
}

func TestHandlerServesPDF(t *testing.T) {
	pdf := &stubPDF{}
	rr := get(newTestRouter(pdf), "/api/documents/purchase-order/b-1?format=pdf")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF", rr.Body.String())
	assert.Contains(t, pdf.html, "발주서")
}

func TestHandlerErrors(t *testing.T) {
	router := newTestRouter(&stubPDF{err: errors.New("gotenberg down")})

	assert.Equal(t, http.StatusBadRequest, get(router, "/api/documents/invoice/b-1").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/api/documents/estimate/b-1?format=docx").Code)
	assert.Equal(t, http.StatusNotFound, get(router, "/api/documents/estimate/missing").Code)
	assert.Equal(t, http.StatusInternalServerError, get(router, "/api/documents/estimate/b-1?format=pdf").Code)
}
