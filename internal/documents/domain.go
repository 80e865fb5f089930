package documents

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ecofacility/facility-erp/internal/business"
	"github.com/ecofacility/facility-erp/internal/platform/httpx"
	"github.com/ecofacility/facility-erp/internal/pricing"
)

// Kind selects which price table a document is built from.
type Kind string

const (
	// KindEstimate is the customer-facing quote at official prices.
	KindEstimate Kind = "estimate"
	// KindPurchaseOrder is the order sent to the manufacturer at cost.
	KindPurchaseOrder Kind = "purchase-order"
)

// Title returns the Korean document title.
func (k Kind) Title() string {
	if k == KindPurchaseOrder {
		return "발주서"
	}
	return "견적서"
}

func (k Kind) prefix() string {
	if k == KindPurchaseOrder {
		return "PO"
	}
	return "EST"
}

// Format is the rendered file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ErrUnknownKind is returned for an unsupported document kind or format.
var ErrUnknownKind = fmt.Errorf("%w: 지원하지 않는 문서 형식입니다.", httpx.ErrValidation)

// ParseKind validates the kind path segment.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.TrimSpace(raw)); k {
	case KindEstimate, KindPurchaseOrder:
		return k, nil
	}
	return "", ErrUnknownKind
}

// ParseFormat validates the format parameter, defaulting to xlsx.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatXLSX, nil
	case FormatXLSX, FormatPDF:
		return f, nil
	}
	return "", ErrUnknownKind
}

var vatRate = decimal.NewFromFloat(0.1)

// LineItem is one equipment row of a document.
type LineItem struct {
	Type      business.EquipmentType
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
}

// Document is an estimate or purchase order ready to render.
type Document struct {
	Kind         Kind
	Number       string
	IssuedAt     time.Time
	BusinessName string
	Address      string
	Manufacturer string
	SalesOffice  string
	Items        []LineItem
	Supply       decimal.Decimal
	VAT          decimal.Decimal
	Total        decimal.Decimal
}

// Build lists every equipment type with a non-zero quantity, priced from the
// catalog: official prices for estimates, manufacturer costs for purchase
// orders. VAT is 10 % of the supply amount rounded to the won.
func Build(kind Kind, rec business.Record, cat *pricing.Catalog, issuedAt time.Time) Document {
	doc := Document{
		Kind:         kind,
		Number:       fmt.Sprintf("%s-%s-%s", kind.prefix(), issuedAt.Format("20060102"), strings.ToUpper(uuid.NewString()[:8])),
		IssuedAt:     issuedAt,
		BusinessName: rec.Name,
		Address:      rec.Address,
		Manufacturer: rec.ManufacturerCode(),
		SalesOffice:  rec.SalesOfficeOrDefault(),
		Items:        []LineItem{},
		Supply:       decimal.Zero,
	}
	for _, t := range business.EquipmentTypes {
		qty := rec.Equipment.Quantity(t)
		if qty <= 0 {
			continue
		}
		var price float64
		if kind == KindPurchaseOrder {
			price = cat.ManufacturerCostOrDefault(doc.Manufacturer, t)
		} else {
			price = cat.OfficialPriceOrDefault(t)
		}
		unit := decimal.NewFromFloat(price)
		amount := unit.Mul(decimal.NewFromInt(int64(qty)))
		doc.Items = append(doc.Items, LineItem{
			Type:      t,
			Name:      cat.EquipmentName(t),
			Quantity:  qty,
			UnitPrice: unit,
			Amount:    amount,
		})
		doc.Supply = doc.Supply.Add(amount)
	}
	doc.VAT = doc.Supply.Mul(vatRate).Round(0)
	doc.Total = doc.Supply.Add(doc.VAT)
	return doc
}

// Filename returns the download name of the rendered document.
func (d Document) Filename(f Format) string {
	return fmt.Sprintf("%s_%s_%s.%s", d.Kind.Title(), d.BusinessName, d.IssuedAt.Format("20060102"), f)
}
