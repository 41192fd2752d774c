package notifier

import (
	"fmt"
	"strings"
	"time"

	"WhaleSentinel/internal/model"

	"github.com/dustin/go-humanize"
)

func shortWallet(wallet string) string {
	if len(wallet) <= 10 {
		return wallet
	}
	return wallet[:6] + "…" + wallet[len(wallet)-4:]
}

func accountName(a *model.Account) string {
	if a.Label != "" {
		return a.Label
	}
	return shortWallet(a.Wallet)
}

// FormatTradeAlert formats an admitted trade into a Telegram message.
func FormatTradeAlert(account *model.Account, act *model.Activity) string {
	var b strings.Builder

	switch act.Status {
	case model.StatusOpen:
		icon := "🐋"
		if account.Category == model.CategoryRegular {
			icon = "👤"
		}
		b.WriteString(fmt.Sprintf("%s <b>新建仓</b> | %s\n\n", icon, accountName(account)))
	case model.StatusAdded:
		b.WriteString(fmt.Sprintf("➕ <b>加仓</b> | %s\n\n", accountName(account)))
	case model.StatusPartiallyClosed:
		b.WriteString(fmt.Sprintf("📉 <b>部分平仓</b> | %s\n\n", accountName(account)))
	case model.StatusClosed:
		b.WriteString(fmt.Sprintf("✅ <b>清仓</b> | %s\n\n", accountName(account)))
	}

	if act.Title != "" {
		b.WriteString(fmt.Sprintf("市场: %s\n", act.Title))
	}
	b.WriteString(fmt.Sprintf("方向: %s %s\n", act.Side, act.Outcome))
	b.WriteString(fmt.Sprintf("数量: %s 股 @ %.3f\n", humanize.Commaf(act.Size), act.Price))
	b.WriteString(fmt.Sprintf("金额: $%s\n", humanize.CommafWithDigits(act.USDValue, 2)))

	if act.RealizedPnl != nil {
		b.WriteString(fmt.Sprintf("\n💰 已实现盈亏: %s", formatPnl(*act.RealizedPnl)))
		if act.PercentPnl != nil {
			b.WriteString(fmt.Sprintf(" (%+.1f%%)", *act.PercentPnl))
		}
		b.WriteString("\n")
	}
	if act.ExitPrice != nil {
		b.WriteString(fmt.Sprintf("综合退出价: %.3f\n", *act.ExitPrice))
	}

	b.WriteString(fmt.Sprintf("\n时间: %s", act.Timestamp.Format("2006-01-02 15:04:05")))
	return b.String()
}

// FormatAccounts formats tracked accounts with their notification budget.
func FormatAccounts(accounts []*model.Account, states map[string]*model.FrequencyState) string {
	var b strings.Builder
	b.WriteString("📋 <b>监控账户</b>\n\n")
	for _, a := range accounts {
		state := states[a.Wallet]
		budget := "?"
		if state != nil {
			budget = fmt.Sprintf("%d/%d (重置 %s)", state.Remaining, a.FrequencyLimit(),
				state.ResetAt.Format("01-02 15:04"))
		}
		copyTag := ""
		if a.Copy.Enabled {
			copyTag = fmt.Sprintf(" | 跟单 $%.0f", a.Copy.InvestmentUSD)
		}
		b.WriteString(fmt.Sprintf("• %s [%s/%s]%s\n  通知额度: %s\n",
			accountName(a), a.Category, a.Tier, copyTag, budget))
	}
	return b.String()
}

// FormatPositions formats open simulated positions.
func FormatPositions(positions []*model.SimulatedPosition) string {
	if len(positions) == 0 {
		return "📭 当前没有持仓"
	}
	var b strings.Builder
	b.WriteString("📦 <b>模拟持仓</b>\n\n")
	for _, p := range positions {
		title := p.Title
		if title == "" {
			title = p.ConditionID
		}
		b.WriteString(fmt.Sprintf("• %s (%s)\n  %s 股 @ %.3f | %s | 已实现 %s\n",
			title, p.Outcome, humanize.Commaf(p.RemainingShares), p.EntryPrice,
			shortWallet(p.Wallet), formatPnl(p.RealizedPnl)))
	}
	return b.String()
}

// FormatPnlSummary formats realized PnL across all simulated positions.
func FormatPnlSummary(positions []*model.SimulatedPosition) string {
	var total, invested float64
	var closed int
	for _, p := range positions {
		total += p.RealizedPnl
		invested += p.InvestmentUSD
		if p.Status == model.PositionClosed {
			closed++
		}
	}
	var b strings.Builder
	b.WriteString("💰 <b>跟单盈亏汇总</b>\n\n")
	b.WriteString(fmt.Sprintf("持仓总数: %d (已平仓 %d)\n", len(positions), closed))
	b.WriteString(fmt.Sprintf("投入总额: $%s\n", humanize.CommafWithDigits(invested, 2)))
	b.WriteString(fmt.Sprintf("已实现盈亏: %s\n", formatPnl(total)))
	return b.String()
}

// FormatDigest formats the daily activity digest.
func FormatDigest(activities []*model.Activity, realizedToday float64) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>每日汇总</b> | %s\n\n", time.Now().Format("2006-01-02")))

	if len(activities) == 0 {
		b.WriteString("今日没有新交易\n")
		return b.String()
	}

	counts := map[model.TradeStatus]int{}
	for _, a := range activities {
		counts[a.Status]++
	}
	b.WriteString(fmt.Sprintf("今日交易: %d 笔\n", len(activities)))
	b.WriteString(fmt.Sprintf("  新建仓 %d | 加仓 %d | 部分平仓 %d | 清仓 %d\n",
		counts[model.StatusOpen], counts[model.StatusAdded],
		counts[model.StatusPartiallyClosed], counts[model.StatusClosed]))
	b.WriteString(fmt.Sprintf("\n今日已实现盈亏: %s\n", formatPnl(realizedToday)))
	return b.String()
}

func formatPnl(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+$%s", humanize.CommafWithDigits(v, 2))
	}
	return fmt.Sprintf("-$%s", humanize.CommafWithDigits(-v, 2))
}
