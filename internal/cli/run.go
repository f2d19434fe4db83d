package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
	"paper-trader/internal/stream"
	"paper-trader/internal/trading"
	"paper-trader/pkg/utils"
)

// Script is a scenario replayed against a fresh account.
type Script struct {
	Account string `yaml:"account"`
	Steps   []Step `yaml:"steps"`
}

// Step is one scripted command. Exactly one of Order, Tick, Cancel,
// SquareOff or Reset is set.
type Step struct {
	Name      string               `yaml:"name"`
	Order     *models.OrderRequest `yaml:"order"`
	Lots      int                  `yaml:"lots"`
	Tick      *TickStep            `yaml:"tick"`
	Cancel    string               `yaml:"cancel"`    // name of an earlier order step
	SquareOff string               `yaml:"squareoff"` // position ID, or "all"
	Reset     bool                 `yaml:"reset"`

	// ExpectError is the error code the step must fail with, e.g.
	// INSUFFICIENT_MARGIN.
	ExpectError string `yaml:"expect_error"`
}

// TickStep is a scripted price update.
type TickStep struct {
	Symbol     string            `yaml:"symbol"`
	Segment    models.Segment    `yaml:"segment"`
	Expiry     string            `yaml:"expiry"`
	Strike     decimal.Decimal   `yaml:"strike"`
	OptionType models.OptionType `yaml:"option_type"`
	LTP        decimal.Decimal   `yaml:"ltp"`
}

// StepResult records the outcome of one step.
type StepResult struct {
	Step    int             `json:"step"`
	Name    string          `json:"name,omitempty"`
	Action  string          `json:"action"`
	Order   *models.Order   `json:"order,omitempty"`
	Filled  []models.Order  `json:"filled,omitempty"`
	PnL     decimal.Decimal `json:"realized_pnl"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
	Matched bool            `json:"expected"`
}

// ScriptResult is the final state of a replayed script.
type ScriptResult struct {
	Account   string             `json:"account"`
	Steps     []StepResult       `json:"steps"`
	Orders    []models.Order     `json:"orders"`
	Positions []models.Position  `json:"positions"`
	Holdings  []models.Holding   `json:"holdings"`
	Funds     models.Funds       `json:"funds"`
	Events    []models.EventType `json:"events"`
}

// LoadScript reads a YAML scenario.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML scenario.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, terrors.Wrapf(terrors.ErrInvalidOrderParameters, "parse script: %v", err)
	}
	if len(s.Steps) == 0 {
		return nil, terrors.Wrap(terrors.ErrInvalidOrderParameters, "script has no steps")
	}
	return &s, nil
}

func newRunCmd(app *App) *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Replay a scripted scenario",
		Long: `Replay a YAML scenario of orders, ticks, cancels, square-offs and resets
against a fresh account and print the resulting books.

Derivative steps may use the expiry aliases near, next and far.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			script, err := LoadScript(args[0])
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			hub := stream.NewHubWithConfig(stream.DefaultHubConfig(), app.Logger)
			var events []models.EventType
			hub.RegisterConsumer(stream.NewConsumerFunc(nil, func(ev models.Event) {
				events = append(events, ev.Type)
			}))
			if err := hub.Start(ctx); err != nil {
				return err
			}

			desk, err := app.newDesk(hub)
			if err != nil {
				hub.Stop()
				return err
			}
			result, runErr := RunScript(ctx, desk, app.Catalog, script)
			hub.Stop()
			result.Events = events

			if output.IsJSON() {
				if err := output.JSON(result); err != nil {
					return err
				}
				return runErr
			}
			printResult(output, result, showEvents)
			return runErr
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "list emitted events")
	return cmd
}

// RunScript executes script against desk. It stops at the first step whose
// outcome differs from its expectation.
func RunScript(ctx context.Context, desk *trading.Desk, contracts trading.Catalog, script *Script) (*ScriptResult, error) {
	acct := desk.Account(script.Account)
	refs := make(map[string]string)
	result := &ScriptResult{Account: acct.ID()}

	var failed error
	for i, step := range script.Steps {
		res := StepResult{Step: i + 1, Name: step.Name}
		err := runStep(ctx, acct, desk, contracts, step, refs, &res)
		if err != nil {
			res.Code = terrors.Code(err)
			res.Error = err.Error()
		}
		res.Matched = res.Code == step.ExpectError
		result.Steps = append(result.Steps, res)
		if !res.Matched {
			if err == nil {
				err = fmt.Errorf("expected %s", step.ExpectError)
			}
			failed = fmt.Errorf("step %d (%s): %w", i+1, res.Action, err)
			break
		}
	}

	result.Orders = acct.Orders(models.OrderFilter{})
	result.Positions = acct.Positions()
	result.Holdings = acct.Holdings()
	result.Funds = acct.Funds()
	return result, failed
}

func runStep(ctx context.Context, acct *trading.Account, desk *trading.Desk, contracts trading.Catalog, step Step, refs map[string]string, res *StepResult) error {
	switch {
	case step.Order != nil:
		res.Action = "order"
		req := *step.Order
		if req.Segment.IsDerivative() {
			c, err := contracts.DerivativeContracts(req.Symbol)
			if err != nil {
				return err
			}
			req.Expiry = resolveExpiry(req.Expiry, c.Expiries)
			if step.Lots > 0 {
				if req.Quantity, err = trading.LotQuantity(step.Lots, c.LotSize); err != nil {
					return err
				}
			}
		}
		order, err := acct.SubmitOrder(ctx, req)
		res.Order = order
		if order != nil && step.Name != "" && err == nil {
			refs[step.Name] = order.ID
		}
		if order != nil {
			res.PnL = order.RealizedPnL
		}
		return err

	case step.Tick != nil:
		res.Action = "tick"
		t := step.Tick
		key := models.InstrumentKey{
			Symbol:     t.Symbol,
			Segment:    t.Segment,
			Expiry:     t.Expiry,
			Strike:     t.Strike,
			OptionType: t.OptionType,
		}
		if key.Segment == "" {
			key.Segment = models.SegmentEQ
		}
		if key.Segment.IsDerivative() {
			if c, err := contracts.DerivativeContracts(key.Symbol); err == nil {
				key.Expiry = resolveExpiry(key.Expiry, c.Expiries)
			}
		}
		filled, err := desk.ApplyTick(ctx, models.Tick{Key: key.Normalize(), LTP: t.LTP, Timestamp: time.Now()})
		res.Filled = filled
		for _, o := range filled {
			res.PnL = res.PnL.Add(o.RealizedPnL)
		}
		return err

	case step.Cancel != "":
		res.Action = "cancel"
		id, ok := refs[step.Cancel]
		if !ok {
			id = step.Cancel
		}
		order, err := acct.CancelOrder(ctx, id)
		res.Order = order
		return err

	case step.SquareOff != "":
		res.Action = "squareoff"
		var pnl decimal.Decimal
		var err error
		if step.SquareOff == "all" {
			pnl, err = acct.SquareOffAll(ctx)
		} else {
			pnl, err = acct.SquareOff(ctx, step.SquareOff)
		}
		res.PnL = pnl
		return err

	case step.Reset:
		res.Action = "reset"
		_, err := acct.Reset(ctx)
		return err
	}

	res.Action = "unknown"
	return terrors.Wrap(terrors.ErrInvalidOrderParameters, "step has no command")
}

// resolveExpiry maps the near/next/far aliases onto listed expiries.
func resolveExpiry(expiry string, listed []string) string {
	idx := -1
	switch expiry {
	case "near":
		idx = 0
	case "next":
		idx = 1
	case "far":
		idx = 2
	}
	if idx < 0 || idx >= len(listed) {
		return expiry
	}
	return listed[idx]
}

func printResult(output *Output, r *ScriptResult, showEvents bool) {
	output.Bold("Steps")
	steps := NewTable(output, "#", "Action", "Name", "Result", "P&L")
	for _, s := range r.Steps {
		status := output.Green("ok")
		switch {
		case !s.Matched:
			status = output.Red(firstNonEmpty(s.Code, "UNEXPECTED"))
		case s.Code != "":
			status = output.Yellow(s.Code)
		case s.Order != nil:
			status = output.Green(string(s.Order.Status))
		case len(s.Filled) > 0:
			status = output.Green(fmt.Sprintf("%d filled", len(s.Filled)))
		}
		steps.AddRow(fmt.Sprint(s.Step), s.Action, s.Name, status, output.PnL(s.PnL))
	}
	steps.Render()
	output.Println()

	printFunds(output, r.Funds)
	output.Println()

	if len(r.Positions) > 0 {
		output.Bold("Positions")
		t := NewTable(output, "ID", "Side", "Qty", "Avg", "LTP", "P&L", "%")
		for _, p := range r.Positions {
			t.AddRow(p.ID, string(p.Side), utils.FormatQuantity(p.Quantity),
				p.AveragePrice.StringFixed(2), p.LTP.StringFixed(2),
				output.PnL(p.UnrealizedPnL), output.Percent(p.UnrealizedPnLPercent))
		}
		t.Render()
		output.Println()
	}

	if len(r.Holdings) > 0 {
		output.Bold("Holdings")
		t := NewTable(output, "Symbol", "Qty", "Avg", "LTP", "Invested", "Current", "P&L", "Day")
		for _, h := range r.Holdings {
			t.AddRow(h.Symbol, utils.FormatQuantity(h.Quantity),
				h.AveragePrice.StringFixed(2), h.LTP.StringFixed(2),
				utils.FormatINR(h.InvestedValue), utils.FormatINR(h.CurrentValue),
				output.PnL(h.UnrealizedPnL), output.Percent(h.DayChangePercent))
		}
		t.Render()
		output.Println()
	}

	if showEvents {
		output.Bold("Events")
		for i, ev := range r.Events {
			output.Printf("  %3d  %s\n", i+1, ev)
		}
	}
}

func printFunds(output *Output, f models.Funds) {
	output.Bold("Funds")
	output.Printf("  Total Balance: %s\n", utils.FormatINR(f.TotalBalance))
	output.Printf("  Used Margin:   %s\n", utils.FormatINR(f.UsedMargin))
	output.Printf("  Available:     %s\n", utils.FormatINR(f.AvailableBalance))
	output.Printf("  Realized:      %s\n", output.PnL(f.RealizedPnL))
	output.Printf("  Unrealized:    %s\n", output.PnL(f.UnrealizedPnL))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
