package cli

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	terrors "paper-trader/internal/errors"
	"paper-trader/internal/models"
	"paper-trader/internal/trading"
	"paper-trader/pkg/utils"
)

func newMarginCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "margin <segment> <quantity> <price>",
		Short: "Calculate margin required for an order",
		Long: `Calculate the margin an order reserves.

EQ and CNC reserve the full notional. FUT and OPT reserve the configured
fraction of notional.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			segment := models.Segment(strings.ToUpper(args[0]))
			if !segment.Valid() {
				return terrors.NewValidationError("segment", args[0], "expected EQ, CNC, FUT or OPT", terrors.ErrInvalidOrderParameters)
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil || qty <= 0 {
				return terrors.NewValidationError("quantity", args[1], "must be a positive integer", terrors.ErrInvalidQuantity)
			}
			price, err := decimal.NewFromString(args[2])
			if err != nil || !price.IsPositive() {
				return terrors.NewValidationError("price", args[2], "must be a positive number", terrors.ErrInvalidOrderParameters)
			}

			calc := trading.NewMarginCalculator(app.Config.DerivativeRate())
			margin := calc.Compute(segment, qty, price)
			notional := price.Mul(decimal.NewFromInt(int64(qty))).Round(2)

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"segment":  segment,
					"quantity": qty,
					"price":    price,
					"notional": notional,
					"margin":   margin,
				})
			}

			output.Println()
			output.Info("Margin Calculator")
			output.Printf("  Segment:  %s\n", segment)
			output.Printf("  Quantity: %s\n", utils.FormatQuantity(qty))
			output.Printf("  Price:    %s\n", utils.FormatINR(price))
			output.Printf("  Notional: %s\n", utils.FormatINR(notional))
			output.Printf("  Margin:   %s\n", output.Yellow(utils.FormatINR(margin)))
			return nil
		},
	}
}

func newInstrumentsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "instruments [symbol]",
		Short: "List catalog instruments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cat, err := app.catalog()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				symbol := strings.ToUpper(args[0])
				inst, err := cat.Instrument(symbol)
				if err != nil {
					return err
				}
				contracts, cerr := cat.DerivativeContracts(symbol)
				if output.IsJSON() {
					resp := map[string]interface{}{"instrument": inst}
					if cerr == nil {
						resp["contracts"] = contracts
					}
					return output.JSON(resp)
				}

				output.Bold("%s", inst.Symbol)
				if inst.Name != "" {
					output.Dim("%s", inst.Name)
				}
				output.Printf("  LTP:        %s\n", utils.FormatINR(inst.LTP))
				output.Printf("  Prev Close: %s\n", utils.FormatINR(inst.PreviousClose))
				output.Printf("  Lot Size:   %d\n", inst.LotSize)
				if cerr == nil && len(contracts.Strikes) > 0 {
					output.Printf("  Expiries:   %s\n", strings.Join(contracts.Expiries, ", "))
					output.Printf("  Strikes:    %d (%s to %s)\n", len(contracts.Strikes),
						contracts.Strikes[0].String(), contracts.Strikes[len(contracts.Strikes)-1].String())
				}
				return nil
			}

			instruments := cat.Instruments()
			if output.IsJSON() {
				return output.JSON(instruments)
			}
			t := NewTable(output, "Symbol", "LTP", "Change", "Lot", "F&O")
			for _, inst := range instruments {
				q := models.Quote{LTP: inst.LTP, PreviousClose: inst.PreviousClose}
				fo := ""
				if inst.Derivatives {
					fo = "yes"
				}
				t.AddRow(inst.Symbol, inst.LTP.StringFixed(2), output.Percent(q.ChangePercent()),
					strconv.Itoa(inst.LotSize), fo)
			}
			t.Render()
			return nil
		},
	}
}

func newChainCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chain <symbol> [expiry]",
		Short: "Show the option chain of an underlying",
		Long:  "Show call and put premiums per strike. Expiry defaults to the nearest listed expiry.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cat, err := app.catalog()
			if err != nil {
				return err
			}

			symbol := strings.ToUpper(args[0])
			contracts, err := cat.DerivativeContracts(symbol)
			if err != nil {
				return err
			}
			expiry := "near"
			if len(args) == 2 {
				expiry = args[1]
			}
			expiry = resolveExpiry(expiry, contracts.Expiries)

			rows, err := cat.OptionChain(symbol, expiry)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rows)
			}

			output.Bold("%s %s (lot %d)", symbol, expiry, contracts.LotSize)
			t := NewTable(output, "Call", "Strike", "Put")
			for _, r := range rows {
				t.AddRow(r.Call.LTP.StringFixed(2), r.Strike.String(), r.Put.LTP.StringFixed(2))
			}
			t.Render()
			return nil
		},
	}
}
