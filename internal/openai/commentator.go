// Package openai writes plain-language commentary on optimization reports.
package openai

import (
	"context"
	"fmt"
	"strings"

	oa "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"portfolioOptimizer/internal/finance"
	"portfolioOptimizer/internal/portfolio"
)

const defaultModel = "gpt-4"

const systemPrompt = `You are a portfolio analyst explaining the output of a mean-volatility optimizer to a retail investor.

You receive the optimized weights, each asset's volatility, the portfolio volatility, the risk aversion used and backtest statistics.

Your response must follow this exact structure:

**Allocation:**
[One or two sentences on where the weight went and why, given return and volatility]

**Risk:**
[What the volatility and max drawdown mean in plain words]

**Caveats:**
[Historical windows do not predict the future; concentration risk when one asset dominates]

Guidelines:
- Stay under 150 words
- Do not recommend other tickers
- Refer to weights as percentages`

type Commentator struct {
	cli   oa.Client
	model string
}

func NewCommentator(apiKey string, opts ...option.RequestOption) *Commentator {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Commentator{cli: oa.NewClient(opts...), model: defaultModel}
}

// Explain asks the model to comment on a finished run.
func (c *Commentator) Explain(ctx context.Context, r *portfolio.Report) (string, error) {
	resp, err := c.cli.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
		Model: c.model,
		Messages: []oa.ChatCompletionMessageParamUnion{
			oa.SystemMessage(systemPrompt),
			oa.UserMessage(describe(r)),
		},
		MaxTokens: oa.Int(400), // keep it short for telegram
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// describe renders the report as the user prompt.
func describe(r *portfolio.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Window: %s to %s (%d periods)\n", r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.Periods)
	fmt.Fprintf(&b, "Risk aversion: %.2f (0 = return only, 1 = heavy volatility penalty)\n\n", r.RiskAversion)
	b.WriteString("Weights:\n")
	for _, a := range r.Allocation {
		fmt.Fprintf(&b, "- %s: %s (daily volatility %s)\n", a.Symbol, finance.Percent(a.Weight), finance.Percent(a.Volatility))
	}
	b.WriteString("\n" + finance.FormatVolatility(r.Volatility) + " (daily)\n")
	if s := r.Stats; s != nil {
		fmt.Fprintf(&b, "Backtest: total return %.2f%%, annualized return %.2f%%, annualized volatility %.2f%%, Sharpe %.2f, max drawdown %.2f%%\n",
			s.TotalReturn, s.AnnualReturn, s.Volatility, s.SharpeRatio, s.MaxDrawdown)
	}
	if r.Status != "converged" {
		fmt.Fprintf(&b, "Note: the solver stopped early (%s).\n", r.Status)
	}
	return b.String()
}
