package commands

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pterm/pterm"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/execution"
	"github.com/teranos/tradepulse/sym"
	"github.com/teranos/tradepulse/trade"
)

// ExecuteCmd submits actions to the execution gateway
var ExecuteCmd = &cobra.Command{
	Use:   "execute",
	Short: sym.Gateway + " Submit actions to the execution gateway",
	Long: sym.Gateway + ` execute - Submit actions to the execution gateway

Each --action is SYMBOL:SIDE:QTY with an optional @PRICE limit; without a
price the order is a market order. Re-sending the same --request-id within
the idempotency window returns the first outcome without placing orders
again. Live calls are refused while the kill-switch is on; dry runs are not.

Examples:
  tradepulse execute --dry-run --action AAPL:buy:10@187.50
  tradepulse execute --request-id rebalance-0301 --action MSFT:sell:5 --action NVDA:buy:2@121`,
	Args: cobra.NoArgs,
	RunE: runExecute,
}

func init() {
	ExecuteCmd.Flags().String("request-id", "", "Idempotency key (default: a new UUID)")
	ExecuteCmd.Flags().Bool("dry-run", false, "Simulate without contacting the broker")
	ExecuteCmd.Flags().StringArray("action", nil, "SYMBOL:SIDE:QTY[@PRICE], repeatable")
	ExecuteCmd.Flags().String("instrument", "", "Instrument type for every action (equity, etf, option, future, crypto)")
	ExecuteCmd.Flags().String("actor", defaultActor(), "Who is executing")
}

func runExecute(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	requestID, _ := flags.GetString("request-id")
	dryRun, _ := flags.GetBool("dry-run")
	specs, _ := flags.GetStringArray("action")
	instrument, _ := flags.GetString("instrument")
	actor, _ := flags.GetString("actor")

	if requestID == "" {
		requestID = uuid.NewString()
	}
	actions := make([]trade.Action, 0, len(specs))
	for _, spec := range specs {
		a, err := parseAction(spec)
		if err != nil {
			return err
		}
		a.InstrumentType = trade.InstrumentType(instrument)
		actions = append(actions, a)
	}

	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	req := execution.Request{RequestID: requestID, DryRun: dryRun, Actions: actions, Actor: actor}
	var outcome execution.Outcome
	if err := client.do(ctx, http.MethodPost, "/api/execute", req, &outcome); err != nil {
		return err
	}
	printOutcome(cmd, &outcome)
	return nil
}

// parseAction reads SYMBOL:SIDE:QTY[@PRICE]
func parseAction(spec string) (trade.Action, error) {
	body, price, hasPrice := strings.Cut(spec, "@")
	parts := strings.Split(body, ":")
	if len(parts) != 3 {
		return trade.Action{}, errors.NewInvalidRequest("action %q: want SYMBOL:SIDE:QTY[@PRICE]", spec)
	}

	qty, err := decimal.NewFromString(parts[2])
	if err != nil {
		return trade.Action{}, errors.NewInvalidRequest("action %q: quantity %q is not a number", spec, parts[2])
	}
	a := trade.Action{
		Symbol:   strings.ToUpper(strings.TrimSpace(parts[0])),
		Side:     trade.Side(strings.ToLower(parts[1])),
		Quantity: qty,
	}
	if hasPrice {
		limit, err := decimal.NewFromString(price)
		if err != nil {
			return trade.Action{}, errors.NewInvalidRequest("action %q: price %q is not a number", spec, price)
		}
		a.LimitPrice = &limit
	}
	if err := a.Validate(); err != nil {
		return trade.Action{}, err
	}
	return a, nil
}

// printOutcome renders a gateway outcome with its per-action results
func printOutcome(cmd *cobra.Command, o *execution.Outcome) {
	ok, failed := o.Counts()
	label := fmt.Sprintf("%s %s %s: %d ok, %d failed", sym.Gateway, o.RequestID, o.Status, ok, failed)
	if o.DryRun {
		label += " (dry run)"
	}
	if o.Duplicate {
		label += " (replayed, no orders placed)"
	}

	switch o.Status {
	case execution.StatusSuccess:
		pterm.Success.Println(label)
	case execution.StatusPartial:
		pterm.Warning.Println(label)
	default:
		pterm.Error.Println(label)
	}
	if len(o.Results) == 0 {
		return
	}

	t := newTable(cmd.OutOrStdout(), table.Row{"#", "Symbol", "Side", "Qty", "Status", "Order", "Fill", "Error"})
	for _, r := range o.Results {
		fill := "-"
		if r.FillPrice != nil {
			fill = r.FillPrice.String()
		}
		t.AppendRow(table.Row{r.Index, r.Action.Symbol, r.Action.Side, r.Action.Quantity.String(), r.Status, r.OrderID, fill, r.Error})
	}
	t.Render()
}
