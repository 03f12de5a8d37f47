package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// DefaultReportDir 默认报告目录
const DefaultReportDir = "backtest/reports"

// GenerateReport 生成 Markdown 回测报告，返回文件路径
func GenerateReport(result *BacktestResult, reportDir string) (string, error) {
	if reportDir == "" {
		reportDir = DefaultReportDir
	}
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	reportPath := filepath.Join(reportDir, reportFileName(result, ".md"))

	content, err := RenderReport(result)
	if err != nil {
		return "", fmt.Errorf("渲染报告模板失败: %w", err)
	}

	if err := os.WriteFile(reportPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	return reportPath, nil
}

// reportFileName 报告文件名：<策略类型>_<交易对>_<时间>
func reportFileName(result *BacktestResult, suffix string) string {
	name := result.Spec.Type
	if result.Symbol != "" {
		name += "_" + result.Symbol
	}
	if result.ID != "" {
		name += "_" + result.ID
	} else {
		name += "_" + time.Now().Format("2006-01-02_15-04-05")
	}
	return name + suffix
}

// ReportData 报告数据
type ReportData struct {
	Strategy       string
	Symbol         string
	GeneratedAt    string
	StartDate      string
	EndDate        string
	InitialCapital string
	FinalCapital   string
	TotalReturn    string
	TradeCount     string
	WinRate        string

	MaxDrawdown          string
	Volatility           string
	SharpeRatio          string
	ProfitFactor         string
	AvgWin               string
	AvgLoss              string
	MaxConsecutiveWins   string
	MaxConsecutiveLosses string
	VaR95                string
	CVaR95               string

	Trades     []TradeRow
	Conclusion string
}

// TradeRow 交易明细行
type TradeRow struct {
	Time   string
	Type   string
	Price  string
	Amount string
	Profit string
	Reason string
}

// prepareReportData 准备报告数据
func prepareReportData(result *BacktestResult) ReportData {
	m := result.Metrics

	// 交易明细（前 20 笔）
	rows := make([]TradeRow, 0, 20)
	for i, trade := range result.Trades {
		if i >= 20 {
			break
		}
		profit := "-"
		if trade.Profit != nil {
			profit = fmt.Sprintf("%.2f", *trade.Profit)
		}
		rows = append(rows, TradeRow{
			Time:   time.UnixMilli(trade.Timestamp).Format("2006-01-02 15:04"),
			Type:   string(trade.Type),
			Price:  fmt.Sprintf("%.2f", trade.Price),
			Amount: fmt.Sprintf("%.4f", trade.Amount),
			Profit: profit,
			Reason: trade.Reason,
		})
	}

	symbol := result.Symbol
	if symbol == "" {
		symbol = "-"
	}

	return ReportData{
		Strategy:       result.Strategy,
		Symbol:         symbol,
		GeneratedAt:    time.Now().Format("2006-01-02 15:04:05"),
		StartDate:      result.StartTime.Format("2006-01-02"),
		EndDate:        result.EndTime.Format("2006-01-02"),
		InitialCapital: fmt.Sprintf("%.2f", result.InitialCapital),
		FinalCapital:   fmt.Sprintf("%.2f", result.FinalCapital),
		TotalReturn:    fmt.Sprintf("%.2f%%", result.TotalReturnPct),
		TradeCount:     strconv.Itoa(result.TradeCount),
		WinRate:        fmt.Sprintf("%.2f%%", result.WinRatePct),

		MaxDrawdown:          fmt.Sprintf("%.2f%%", m.MaxDrawdown),
		Volatility:           fmt.Sprintf("%.4f%%", m.Volatility),
		SharpeRatio:          fmt.Sprintf("%.4f", m.SharpeRatio),
		ProfitFactor:         fmt.Sprintf("%.2f", m.ProfitFactor),
		AvgWin:               fmt.Sprintf("%.2f", m.AvgWin),
		AvgLoss:              fmt.Sprintf("%.2f", m.AvgLoss),
		MaxConsecutiveWins:   strconv.Itoa(m.MaxConsecutiveWins),
		MaxConsecutiveLosses: strconv.Itoa(m.MaxConsecutiveLosses),
		VaR95:                fmt.Sprintf("%.4f%%", m.TailRisk.VaR95),
		CVaR95:               fmt.Sprintf("%.4f%%", m.TailRisk.CVaR95),

		Trades:     rows,
		Conclusion: generateConclusion(result),
	}
}

// generateConclusion 生成结论
func generateConclusion(result *BacktestResult) string {
	var conclusions []string

	switch {
	case result.TradeCount == 0:
		conclusions = append(conclusions, "⚠️ 回测期间没有触发任何交易")
	case result.TotalReturnPct > 20:
		conclusions = append(conclusions, "✅ 策略表现良好，总收益率超过 20%")
	case result.TotalReturnPct > 0:
		conclusions = append(conclusions, "⚠️ 策略盈利，但收益率较低")
	default:
		conclusions = append(conclusions, "❌ 策略亏损，需要优化参数或更换策略")
	}

	if result.Metrics.MaxDrawdown >= 20 {
		conclusions = append(conclusions, "❌ 风险较高，最大回撤超过 20%")
	} else if result.Metrics.MaxDrawdown >= 10 {
		conclusions = append(conclusions, "⚠️ 风险适中，最大回撤在 10-20% 之间")
	}

	return strings.Join(conclusions, "\n\n")
}

var reportTemplate = template.Must(template.New("report").Parse(`# {{.Strategy}} 策略回测报告

生成时间: {{.GeneratedAt}}

## 执行摘要

- **交易对**: {{.Symbol}}
- **回测期间**: {{.StartDate}} 至 {{.EndDate}}
- **初始资金**: {{.InitialCapital}}
- **最终资金**: {{.FinalCapital}}
- **总收益率**: {{.TotalReturn}}
- **交易次数**: {{.TradeCount}}
- **胜率**: {{.WinRate}}

## 风险指标

| 指标 | 数值 |
|------|------|
| 最大回撤 | {{.MaxDrawdown}} |
| 波动率 | {{.Volatility}} |
| 夏普比率 | {{.SharpeRatio}} |
| 利润因子 | {{.ProfitFactor}} |
| 平均盈利 | {{.AvgWin}} |
| 平均亏损 | {{.AvgLoss}} |
| 最大连续盈利 | {{.MaxConsecutiveWins}} 笔 |
| 最大连续亏损 | {{.MaxConsecutiveLosses}} 笔 |
| VaR (95%) | {{.VaR95}} |
| CVaR (95%) | {{.CVaR95}} |

## 交易明细（前20笔）

| 时间 | 类型 | 价格 | 数量 | 盈亏 | 原因 |
|------|------|------|------|------|------|
{{range .Trades}}| {{.Time}} | {{.Type}} | {{.Price}} | {{.Amount}} | {{.Profit}} | {{.Reason}} |
{{end}}
## 结论

{{.Conclusion}}
`))

// RenderReport 渲染 Markdown 报告内容
func RenderReport(result *BacktestResult) (string, error) {
	var buf strings.Builder
	if err := reportTemplate.Execute(&buf, prepareReportData(result)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SaveEquityCurveCSV 保存权益曲线到 CSV
func SaveEquityCurveCSV(result *BacktestResult, reportDir string) (string, error) {
	if reportDir == "" {
		reportDir = DefaultReportDir
	}
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	csvPath := filepath.Join(reportDir, reportFileName(result, "_equity.csv"))
	file, err := os.Create(csvPath)
	if err != nil {
		return "", fmt.Errorf("创建 CSV 文件失败: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"timestamp", "equity"}); err != nil {
		return "", fmt.Errorf("写入表头失败: %w", err)
	}
	for _, point := range result.EquityHistory {
		record := []string{
			strconv.FormatInt(point.Timestamp, 10),
			strconv.FormatFloat(point.Value, 'f', 2, 64),
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("写入数据失败: %w", err)
		}
	}
	writer.Flush()

	return csvPath, writer.Error()
}
