package notifier

import (
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"DipSentinel/internal/model"
	"DipSentinel/internal/service"
)

func money(d decimal.Decimal) string {
	return "$" + humanize.CommafWithDigits(d.Round(2).InexactFloat64(), 2)
}

func price(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

// FormatIntent renders a notification intent as an HTML Telegram message.
func FormatIntent(in model.NotificationIntent) string {
	var b strings.Builder
	sym := html.EscapeString(in.Instrument)

	switch in.Class {
	case model.ClassBuy:
		title := T("BUY alert")
		if in.Escalated {
			title = T("BUY alert (deeper drop)")
		}
		b.WriteString(fmt.Sprintf("🟢 <b>%s</b> | %s\n\n", title, sym))
		b.WriteString(T("Price: %s", price(in.Price)) + "\n")
		b.WriteString(T("60-day high: %s", price(in.WindowHigh)) + "\n")
		b.WriteString(T("Drop: %.2f%% (threshold %.2f%%)", in.DropPct, in.ThresholdPct) + "\n")
		writeDCA(&b, in)
	case model.ClassDCA:
		b.WriteString(fmt.Sprintf("🎯 <b>%s</b> | %s\n\n", T("DCA suggestion"), sym))
		b.WriteString(T("Price: %s", price(in.Price)) + "\n")
		b.WriteString(T("Drop: %.2f%% from the 60-day high", in.DropPct) + "\n")
		writeDCA(&b, in)
	case model.ClassTakeProfit:
		b.WriteString(fmt.Sprintf("💰 <b>%s</b> | %s\n\n", T("TAKE PROFIT"), sym))
		b.WriteString(T("Price: %s", price(in.Price)) + "\n")
		b.WriteString(T("Entry: %s, target: %s (+%.2f%%)", price(in.EntryPrice), price(in.TargetPrice), in.ThresholdPct) + "\n")
	case model.ClassStopLoss:
		b.WriteString(fmt.Sprintf("🛑 <b>%s</b> | %s\n\n", T("STOP LOSS"), sym))
		b.WriteString(T("Price: %s", price(in.Price)) + "\n")
		b.WriteString(T("Entry: %s, stop: %s (-%.2f%%)", price(in.EntryPrice), price(in.TargetPrice), in.ThresholdPct) + "\n")
	default:
		b.WriteString(fmt.Sprintf("<b>%s</b> | %s\n", html.EscapeString(string(in.Class)), sym))
	}

	writeExtended(&b, in)
	return b.String()
}

func writeDCA(b *strings.Builder, in model.NotificationIntent) {
	if in.BudgetExhausted {
		b.WriteString("\n⚠️ " + T("Weekly dip budget used up, no DCA suggestion this week.") + "\n")
		return
	}
	s := in.DCA
	if s == nil {
		return
	}
	b.WriteString("\n" + T("Suggested DCA: %s (tier %.0f%%)", money(s.Amount), s.TierDrawdownPct) + "\n")
	if s.Capped {
		b.WriteString(T("Capped from %s by the weekly dip budget.", money(s.TierAmount)) + "\n")
	}
	if s.Remaining != nil {
		b.WriteString(T("Dip budget left before this buy: %s", money(*s.Remaining)) + "\n")
	}
}

func writeExtended(b *strings.Builder, in model.NotificationIntent) {
	ext := in.Extended
	if ext == nil || !ext.HasAny() {
		return
	}
	b.WriteString("\n📈 <b>" + T("Indicators") + "</b>\n")
	if ext.SMA50 != nil {
		b.WriteString(fmt.Sprintf("  SMA50: %s\n", price(*ext.SMA50)))
	}
	if ext.SMA200 != nil {
		b.WriteString(fmt.Sprintf("  SMA200: %s (%+.1f%%)\n", price(*ext.SMA200), (in.Price-*ext.SMA200) / *ext.SMA200 * 100))
	}
	if ext.RSI14 != nil {
		b.WriteString(fmt.Sprintf("  RSI14: %.0f\n", *ext.RSI14))
	}
	if ext.VolumeRatio != nil {
		b.WriteString(fmt.Sprintf("  %s: %.2fx\n", T("Volume"), *ext.VolumeRatio))
	}
	if in.Score != nil {
		b.WriteString(fmt.Sprintf("  %s: %+.2f (%s)\n", T("Score"), in.Score.Total, scoreLabel(in.Score.Label)))
	}
}

// scoreLabel translates a score label. Each catalogue lookup uses a constant message id.
func scoreLabel(label string) string {
	switch label {
	case model.LabelStrong:
		return T(model.LabelStrong)
	case model.LabelGood:
		return T(model.LabelGood)
	case model.LabelFair:
		return T(model.LabelFair)
	case model.LabelWeak:
		return T(model.LabelWeak)
	default:
		return html.EscapeString(label)
	}
}

// FormatBudget renders the weekly budget state.
func FormatBudget(st model.BudgetState) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>%s</b> | %s\n\n", T("Weekly budget"), st.WeekStart.Format("2006-01-02")))
	b.WriteString(T("Plan: %s of %s spent, %s left", money(st.PlanSpent), money(st.PlanBudget), money(st.PlanRemaining())) + "\n")
	b.WriteString(T("Dip: %s of %s spent, %s left", money(st.DipSpent), money(st.DipBudget), money(st.DipRemaining())) + "\n")
	return b.String()
}

// FormatPlanSummary renders the fixed weekly plan, used by the Monday reminder.
func FormatPlanSummary(sum service.PlanSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗓 <b>%s</b>\n\n", T("Monday plan")))
	if len(sum.Entries) == 0 {
		b.WriteString(T("No plan configured.") + "\n")
		return b.String()
	}
	for _, e := range sum.Entries {
		b.WriteString(fmt.Sprintf("• %s: %s\n", html.EscapeString(e.Instrument), money(e.Amount)))
	}
	b.WriteString("\n" + T("Plan total: %s", money(sum.Total)) + "\n")
	if sum.HasBudget {
		b.WriteString(T("Weekly plan budget: %s (left %s)", money(sum.PlanBudget), money(sum.PlanRemaining)) + "\n")
		b.WriteString(T("Weekly dip budget: %s", money(sum.DipBudget)) + "\n")
	}
	if sum.OverBudget {
		b.WriteString("\n⚠️ " + T("Your plan is above the weekly budget.") + "\n")
	}
	return b.String()
}
