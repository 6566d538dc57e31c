package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/tradepulse/approval"
	"github.com/teranos/tradepulse/server"
	"github.com/teranos/tradepulse/sym"
)

// ApprovalsCmd reviews candidate trades held for sign-off
var ApprovalsCmd = &cobra.Command{
	Use:     "approvals",
	Aliases: []string{"approval"},
	Short:   sym.Approval + " Review trades awaiting approval",
	Long: sym.Approval + ` approvals - Review trades awaiting approval

Candidates from schedules that require approval wait here until an
operator approves or rejects them, or their window closes. Approving
sends the trade to the execution gateway exactly once.

Examples:
  tradepulse approvals list
  tradepulse approvals list --tier high
  tradepulse approvals approve AR_abc --actor alice
  tradepulse approvals reject AR_abc --actor alice`,
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending requests, soonest expiring first",
	Args:  cobra.NoArgs,
	RunE:  runApprovalsList,
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending request and execute it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveApproval(cmd, args[0], "approve")
	},
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveApproval(cmd, args[0], "reject")
	},
}

var approvalsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire requests whose window has closed",
	Args:  cobra.NoArgs,
	RunE:  runApprovalsSweep,
}

func init() {
	approvalsListCmd.Flags().String("tier", "", "Only this risk tier (low, high)")
	for _, c := range []*cobra.Command{approvalsApproveCmd, approvalsRejectCmd} {
		c.Flags().String("actor", defaultActor(), "Who is deciding")
	}

	ApprovalsCmd.AddCommand(approvalsListCmd)
	ApprovalsCmd.AddCommand(approvalsApproveCmd)
	ApprovalsCmd.AddCommand(approvalsRejectCmd)
	ApprovalsCmd.AddCommand(approvalsSweepCmd)
}

// defaultActor is the OS user, for audit trails
func defaultActor() string {
	return os.Getenv("USER")
}

func runApprovalsList(cmd *cobra.Command, args []string) error {
	path := "/api/approvals"
	if tier, _ := cmd.Flags().GetString("tier"); tier != "" {
		path += "?risk_tier=" + url.QueryEscape(tier)
	}

	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var resp server.ListApprovalsResponse
	if err := client.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	if resp.Count == 0 {
		pterm.Info.Println("Nothing awaiting approval")
		return nil
	}

	t := newTable(cmd.OutOrStdout(), table.Row{"ID", "Risk", "Side", "Qty", "Symbol", "Limit", "Expires in", "Rationale"})
	now := time.Now()
	for _, r := range resp.Requests {
		limit := "market"
		if r.Candidate.LimitPrice != nil {
			limit = r.Candidate.LimitPrice.String()
		}
		t.AppendRow(table.Row{
			r.ID, r.RiskTier, r.Candidate.Side, r.Candidate.Quantity.String(), r.Candidate.Symbol,
			limit, r.ExpiresAt.Sub(now).Round(time.Minute), truncate(r.Candidate.Rationale, 40),
		})
	}
	t.Render()
	return nil
}

func resolveApproval(cmd *cobra.Command, id, action string) error {
	actor, _ := cmd.Flags().GetString("actor")
	if actor == "" {
		return fmt.Errorf("--actor is required")
	}

	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var decision approval.Decision
	err = client.do(ctx, http.MethodPost, "/api/approvals/"+url.PathEscape(id)+"/"+action, server.ResolveRequest{Actor: actor}, &decision)
	if err != nil {
		return err
	}

	pterm.Success.Printf("%s %s %s by %s\n", sym.Approval, decision.Request.ID, decision.Request.Status, actor)
	if decision.Outcome != nil {
		printOutcome(cmd, decision.Outcome)
	}
	return nil
}

func runApprovalsSweep(cmd *cobra.Command, args []string) error {
	client, err := clientFor(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var resp server.SweepResponse
	if err := client.do(ctx, http.MethodPost, "/api/approvals/sweep", nil, &resp); err != nil {
		return err
	}
	pterm.Info.Printf("Expired %d request(s)\n", resp.Expired)
	return nil
}
