package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"parkease/services/wallet-client/internal/app"
	"parkease/services/wallet-client/internal/history"
	"parkease/services/wallet-client/internal/models"
	"parkease/services/wallet-client/internal/payment"
	"parkease/services/wallet-client/internal/topup"
)

const defaultRecent = 10

func newLoginCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in and verify the session with the wallet backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), rt, func(*app.App) error { return nil })
		},
	}
}

func newLogoutCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), rt, func(a *app.App) error {
				return a.SignOut(cmd.Context())
			})
		},
	}
}

func newBalanceCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), rt, showBalance)
		},
	}
}

func newCheckInCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin <vehicle>",
		Short: "Check a vehicle in and pay the parking fee from the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rt, func(a *app.App) error {
				_, err := a.CheckIn.CheckIn(cmd.Context(), args[0])
				return reported(err)
			})
		},
	}
}

func newTopUpCmd(rt *Runtime) *cobra.Command {
	var (
		paymentMethod string
		recent        bool
		limit         int
	)
	cmd := &cobra.Command{
		Use:   "topup [amount]",
		Short: "Add money to the wallet by card",
		Long: `topup requests a payment intent for the amount, authorizes the card with the payment
processor and asks the backend to credit the wallet. The card is given as a payment method
token created by the processor, never as raw card details.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if recent {
				return withSession(cmd.Context(), rt, func(a *app.App) error {
					return printRecent(cmd.Context(), cmd.OutOrStdout(), a, limit)
				})
			}
			if len(args) != 1 {
				return errors.New("amount is required")
			}
			amount, err := topup.ParseAmount(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rt, func(a *app.App) error {
				_, err := a.TopUp.Run(cmd.Context(), amount, payment.CardInput{PaymentMethod: paymentMethod})
				return reported(err)
			})
		},
	}
	cmd.Flags().StringVar(&paymentMethod, "payment-method", "", "Payment method token from the processor (pm_...)")
	cmd.Flags().BoolVar(&recent, "recent", false, "List recent top-up outcomes instead of paying")
	cmd.Flags().IntVar(&limit, "limit", defaultRecent, "Number of outcomes to list with --recent")
	cmd.AddCommand(newCheckoutCmd(rt), newConfirmSessionCmd(rt))
	return cmd
}

func newCheckoutCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <amount>",
		Short: "Open a hosted checkout page to pay in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := topup.ParseAmount(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rt, func(a *app.App) error {
				cs, err := a.TopUp.StartCheckout(cmd.Context(), amount)
				if err != nil {
					return reported(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cs.URL)
				return nil
			})
		},
	}
}

func newConfirmSessionCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm-session <session-id>",
		Short: "Credit the wallet for a paid checkout session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rt, func(a *app.App) error {
				_, err := a.TopUp.ConfirmCheckout(cmd.Context(), args[0])
				return reported(err)
			})
		},
	}
}

func newHistoryCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List wallet credits and parking debits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), rt, func(a *app.App) error {
				return printHistory(cmd.Context(), cmd.OutOrStdout(), a)
			})
		},
	}
}

func showBalance(a *app.App) error {
	if _, ok := a.Balance.Cached(); !ok {
		return reported(errors.New("balance unavailable"))
	}
	return nil
}

func printHistory(ctx context.Context, out io.Writer, a *app.App) error {
	entries, err := a.History.List(ctx)
	if err != nil {
		return reported(err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No wallet history yet.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tTYPE\tAMOUNT\tDETAIL")
	for _, e := range entries {
		detail := e.Description
		if e.Vehicle != "" {
			detail = e.Vehicle
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp, e.Type, e.Amount.StringFixed(2), detail)
	}
	credits, debits := history.Totals(entries)
	fmt.Fprintf(w, "\t\t\t\n\tcredits\t%s\t\n\tdebits\t%s\t\n", credits.Formatted(), debits.Formatted())
	return w.Flush()
}

func printRecent(ctx context.Context, out io.Writer, a *app.App, limit int) error {
	s, ok := a.Holder.Current()
	if !ok {
		return app.ErrNotSignedIn
	}
	outcomes, err := a.Journal.Recent(ctx, s.UserID, limit)
	if err != nil {
		return err
	}
	if len(outcomes) == 0 {
		fmt.Fprintln(out, "No top-ups recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tINTENT\tAMOUNT\tRESULT")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.FinishedAt.Local().Format("2006-01-02 15:04"), o.IntentID, o.Amount.StringFixed(2), outcomeResult(o))
	}
	return w.Flush()
}

func outcomeResult(o models.PaymentOutcome) string {
	if o.Success {
		return "settled"
	}
	if o.Reason != "" {
		return "failed: " + o.Reason
	}
	return "failed"
}
