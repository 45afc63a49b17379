package telegram

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"portfolioOptimizer/internal/config"
	"portfolioOptimizer/internal/finance"
	"portfolioOptimizer/internal/optimizer"
	"portfolioOptimizer/internal/portfolio"
	"portfolioOptimizer/internal/storage"
)

var (
	// /optimize S1,S2 ... [window] [risk_aversion]
	reOptimize = regexp.MustCompile(`^/optimize(?:@[\w_]+)?(?:\s+|$)`)
	// /runs [n]
	reRuns = regexp.MustCompile(`^/runs(?:@[\w_]+)?(?:\s+(\d+))?$`)
	// /help
	reHelp = regexp.MustCompile(`^/(help|start)(?:@[\w_]+)?$`)
)

// Sender is the part of tgbotapi.BotAPI the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Optimizer runs and lists optimizations.
type Optimizer interface {
	Run(ctx context.Context, req portfolio.Request) (*portfolio.Report, error)
	History(ctx context.Context, chatID int64, limit int) ([]storage.RunRecord, error)
}

// Explainer writes commentary on a report. Optional.
type Explainer interface {
	Explain(ctx context.Context, r *portfolio.Report) (string, error)
}

type Handlers struct {
	api      Sender
	svc      Optimizer
	explain  Explainer
	defaults config.Run
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewHandlers wires the bot commands. explain may be nil.
func NewHandlers(api Sender, svc Optimizer, explain Explainer, defaults config.Run, log zerolog.Logger) *Handlers {
	return &Handlers{
		api:      api,
		svc:      svc,
		explain:  explain,
		defaults: defaults,
		timeout:  2 * time.Minute,
		now:      time.Now,
		log:      log.With().Str("component", "telegram").Logger(),
	}
}

func (h *Handlers) HandleMessage(m *tgbotapi.Message) {
	if m == nil || m.Chat == nil {
		return
	}
	txt := strings.TrimSpace(m.Text)
	switch {
	case reOptimize.MatchString(txt):
		h.handleOptimize(m.Chat.ID, txt)

	case reRuns.MatchString(txt):
		limit := 5
		if g := reRuns.FindStringSubmatch(txt); len(g) == 2 && g[1] != "" {
			limit, _ = strconv.Atoi(g[1])
			limit = min(max(limit, 1), 20)
		}
		h.handleRuns(m.Chat.ID, limit)

	case reHelp.MatchString(txt):
		h.handleHelp(m.Chat.ID)
	}
}

func (h *Handlers) handleOptimize(chatID int64, txt string) {
	cmd, err := finance.ParseOptimizeCommand(txt, h.now(), h.defaults.Start)
	if err != nil {
		h.reply(chatID, "Usage: /optimize AAPL,GOOG [window] [risk_aversion]\n"+err.Error())
		return
	}

	run := h.defaults
	run.Tickers = cmd.Tickers
	run.Start, run.End = cmd.Start, cmd.End
	if cmd.RiskAversion != nil {
		run.RiskAversion = *cmd.RiskAversion
	}

	h.reply(chatID, fmt.Sprintf("Optimizing %s over %s…", strings.Join(cmd.Tickers, ", "), cmd.Window))

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	report, err := h.svc.Run(ctx, portfolio.Request{Run: run, ChatID: chatID})
	if err != nil {
		h.reply(chatID, UserMessage(err))
		return
	}

	h.reply(chatID, FormatReport(report))

	name := strings.Join(report.Tickers, "_")
	if len(report.Tickers) > 1 {
		if img, err := finance.MakeAllocationChart(report.Tickers, report.Weights()); err == nil {
			h.sendPhoto(chatID, name+"_allocation.png", img, "Optimized allocation")
		} else {
			h.log.Warn().Err(err).Msg("telegram: allocation chart failed")
		}
	}
	if report.Portfolio != nil {
		img, err := finance.MakePerformanceChart(report.ChartKey(), report.Tickers, report.Weights(), report.Portfolio, report.Stats)
		if err == nil {
			h.sendPhoto(chatID, name+"_performance.png", img, "Backtest of the optimized weights")
		} else {
			h.log.Warn().Err(err).Msg("telegram: performance chart failed")
		}
	}
	if report.Surface != nil {
		img, err := finance.MakeSurfaceChart(report.ChartKey(), report.Surface, 5)
		if err == nil {
			h.sendPhoto(chatID, name+"_surface.png", img, finance.SurfaceTitle)
		} else {
			h.log.Warn().Err(err).Msg("telegram: surface chart failed")
		}
	}

	if h.explain != nil {
		text, err := h.explain.Explain(ctx, report)
		if err != nil {
			h.log.Warn().Err(err).Str("run_id", report.ID).Msg("telegram: commentary failed")
			return
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = "Markdown"
		h.send(msg)
	}
}

func (h *Handlers) handleRuns(chatID int64, limit int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runs, err := h.svc.History(ctx, chatID, limit)
	if err != nil {
		h.reply(chatID, "History failed: "+err.Error())
		return
	}
	if len(runs) == 0 {
		h.reply(chatID, "No runs yet. Try /optimize AAPL,MSFT 1y")
		return
	}
	h.reply(chatID, FormatRuns(runs))
}

func (h *Handlers) handleHelp(chatID int64) {
	help := "Commands\n\n" +
		"- /optimize S1,S2 ... [window] [risk_aversion] - Optimize a long-only allocation (window: 30d|6w|3m|1y|5y|max, default 1y; risk aversion 0..1, default " +
		strconv.FormatFloat(h.defaults.RiskAversion, 'f', -1, 64) + ")\n" +
		"- /runs [n] - Your last n optimizations (default 5, max 20)\n" +
		"- /help - This message\n" +
		"\nPrices: Yahoo daily adjusted closes. Weights are between 0% and 100% and sum to 100%."
	h.reply(chatID, help)
}

// FormatReport is the text reply to /optimize.
func FormatReport(r *portfolio.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Optimal allocation (%s → %s, risk aversion %.2f)\n\n",
		r.Start.Format("2006-01-02"), r.End.AddDate(0, 0, -1).Format("2006-01-02"), r.RiskAversion)
	b.WriteString(finance.FormatAllocation(r.Tickers, r.Weights()))
	b.WriteString("\n" + finance.FormatVolatility(r.Volatility) + "\n")
	if s := r.Stats; s != nil {
		fmt.Fprintf(&b, "Return: %.2f%% | Annual: %.2f%% | Sharpe: %.2f | MaxDD: %.2f%%\n",
			s.TotalReturn, s.AnnualReturn, s.SharpeRatio, s.MaxDrawdown)
	}
	if r.Status != optimizer.StatusConverged.String() {
		fmt.Fprintf(&b, "\nSolver stopped early (%s); weights are the best found.\n", r.Status)
	}
	return b.String()
}

// FormatRuns lists past runs, newest first.
func FormatRuns(runs []storage.RunRecord) string {
	var b strings.Builder
	b.WriteString("Recent runs\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "\n%s • %s • λ=%.2f • %s\n", r.CreatedAt.Format("2006-01-02 15:04"), strings.Join(r.Tickers, ","), r.RiskAversion, r.Status)
		for i, sym := range r.Tickers {
			if i < len(r.Weights) {
				fmt.Fprintf(&b, "  %s %s\n", sym, finance.Percent(r.Weights[i]))
			}
		}
	}
	return b.String()
}

// UserMessage turns a run error into a chat reply.
func UserMessage(err error) string {
	var unavailable *finance.DataUnavailableError
	var insufficient *optimizer.InsufficientDataError
	switch {
	case errors.As(err, &unavailable):
		return fmt.Sprintf("Couldn’t fetch %s: %s", unavailable.Ticker, unavailable.Reason)
	case errors.As(err, &insufficient):
		return "Not enough overlapping price history for these tickers. Try a longer window."
	case errors.Is(err, config.ErrInvalid):
		return "Invalid request: " + err.Error()
	case errors.Is(err, optimizer.ErrNumericalDomain):
		return "The optimizer hit a numerical problem with this data; try other tickers or a different window."
	case errors.Is(err, context.DeadlineExceeded):
		return "Optimization timed out. Try fewer tickers or a shorter window."
	default:
		return "Optimization failed: " + err.Error()
	}
}

func (h *Handlers) sendPhoto(chatID int64, name string, img []byte, caption string) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: img})
	photo.Caption = caption
	h.send(photo)
}

func (h *Handlers) reply(chatID int64, text string) {
	h.send(tgbotapi.NewMessage(chatID, text))
}

func (h *Handlers) send(c tgbotapi.Chattable) {
	if _, err := h.api.Send(c); err != nil {
		h.log.Warn().Err(err).Msg("telegram: send failed")
	}
}
