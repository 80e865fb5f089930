package documents

import (
	"bytes"
	"html/template"

	"github.com/shopspring/decimal"
)

var pageTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"won":   func(d decimal.Decimal) string { return won(d.IntPart()) },
	"count": func(i int) int { return i + 1 },
}).Parse(`<!DOCTYPE html>
<html lang="ko">
<head>
<meta charset="utf-8">
<title>{{.Kind.Title}} {{.Number}}</title>
<style>
body { font-family: "Noto Sans KR", sans-serif; font-size: 12px; margin: 32px; }
h1 { text-align: center; letter-spacing: 12px; }
table { width: 100%; border-collapse: collapse; margin-top: 16px; }
th, td { border: 1px solid #333; padding: 6px 8px; }
th { background: #e6f3ff; }
td.num { text-align: right; }
.info td { border: none; padding: 2px 0; }
</style>
</head>
<body>
<h1>{{.Kind.Title}}</h1>
<table class="info">
<tr><td>문서번호</td><td>{{.Number}}</td></tr>
<tr><td>발행일</td><td>{{.IssuedAt.Format "2006-01-02"}}</td></tr>
<tr><td>사업장명</td><td>{{.BusinessName}}</td></tr>
<tr><td>주소</td><td>{{.Address}}</td></tr>
<tr><td>제조사</td><td>{{.Manufacturer}}</td></tr>
</table>
<table>
<thead><tr><th>No</th><th>품목</th><th>수량</th><th>단가</th><th>금액</th></tr></thead>
<tbody>
{{- range $i, $item := .Items}}
<tr><td>{{count $i}}</td><td>{{$item.Name}}</td><td class="num">{{$item.Quantity}}</td><td class="num">{{won $item.UnitPrice}}</td><td class="num">{{won $item.Amount}}</td></tr>
{{- end}}
</tbody>
<tfoot>
<tr><th colspan="4">공급가액</th><td class="num">{{won .Supply}}</td></tr>
<tr><th colspan="4">부가세(10%)</th><td class="num">{{won .VAT}}</td></tr>
<tr><th colspan="4">합계</th><td class="num">{{won .Total}}</td></tr>
</tfoot>
</table>
</body>
</html>
`))

// HTML renders the printable page that Gotenberg converts to PDF.
func HTML(d Document) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
