package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ecofacility/facility-erp/internal/revenue"
)

var header = []string{"기간", "표시", "매출", "매입", "순이익", "이익률(%)", "전기대비(%)", "목표", "달성률(%)", "사업장 수"}

var printer = message.NewPrinter(language.Korean)

// WriteDashboardCSV emits dashboard buckets followed by the summary block.
func WriteDashboardCSV(w io.Writer, d revenue.Dashboard) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(header); err != nil {
		return err
	}
	for _, b := range d.Buckets {
		if err := writer.Write(bucketRecord(b)); err != nil {
			return err
		}
	}
	summary := [][]string{
		{},
		{"총 매출", printer.Sprintf("%d원", int64(d.Summary.TotalRevenue))},
		{"총 순이익", printer.Sprintf("%d원", int64(d.Summary.TotalProfit))},
		{"평균 순이익", printer.Sprintf("%d원", int64(d.Summary.AvgProfit))},
		{"평균 이익률", formatFloat(d.Summary.AvgProfitRate) + "%"},
	}
	for _, record := range summary {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func bucketRecord(b revenue.Bucket) []string {
	target, achievement := "", ""
	if b.Target != nil {
		target = formatFloat(*b.Target)
	}
	if b.AchievementRate != nil {
		achievement = formatFloat(*b.AchievementRate)
	}
	return []string{
		b.Month,
		b.Label,
		formatFloat(b.Revenue),
		formatFloat(b.Cost),
		formatFloat(b.Profit),
		formatFloat(b.ProfitRate),
		formatFloat(b.PrevMonthChange),
		target,
		achievement,
		strconv.Itoa(b.Count),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
