package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"parkease/services/wallet-client/internal/app"
	"parkease/services/wallet-client/internal/payment"
	"parkease/services/wallet-client/internal/topup"
)

const shellHelp = `commands:
  login                       sign in
  logout                      sign out
  balance                     refresh the wallet balance
  checkin <vehicle>           check a vehicle in
  topup <amount> <pm_token>   top the wallet up by card
  checkout <amount>           open a hosted checkout page
  confirm <session_id>        credit a paid checkout
  history                     list wallet history
  recent                      list recent top-ups
  help                        show this help
  exit                        leave the shell`

var errQuit = errors.New("quit")

func newShellCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session that keeps you signed in between commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), rt, func(a *app.App) error {
				return runShell(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func runShell(ctx context.Context, a *app.App, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "ParkEase wallet. Type `help` for commands.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		err := dispatch(ctx, a, out, strings.Fields(scanner.Text()))
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil && !errors.Is(err, errReported) {
			fmt.Fprintln(out, "error:", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func dispatch(ctx context.Context, a *app.App, out io.Writer, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "help", "?":
		fmt.Fprintln(out, shellHelp)
		return nil
	case "exit", "quit":
		return errQuit
	case "login":
		err := a.SignIn(ctx)
		if errors.Is(err, app.ErrNotSignedIn) {
			return reported(err)
		}
		return err
	}

	if _, ok := a.Holder.Current(); !ok {
		return errors.New("please sign in first (type `login`)")
	}

	switch name {
	case "logout":
		return a.SignOut(ctx)
	case "balance":
		a.Balance.FetchBalance(ctx)
		return nil
	case "checkin":
		if len(args) == 0 {
			args = []string{""}
		}
		_, err := a.CheckIn.CheckIn(ctx, strings.Join(args, " "))
		return reported(err)
	case "topup":
		if len(args) != 2 {
			return errors.New("usage: topup <amount> <pm_token>")
		}
		amount, err := topup.ParseAmount(args[0])
		if err != nil {
			return err
		}
		_, err = a.TopUp.Run(ctx, amount, payment.CardInput{PaymentMethod: args[1]})
		return reported(err)
	case "checkout":
		if len(args) != 1 {
			return errors.New("usage: checkout <amount>")
		}
		amount, err := topup.ParseAmount(args[0])
		if err != nil {
			return err
		}
		_, err = a.TopUp.StartCheckout(ctx, amount)
		return reported(err)
	case "confirm":
		if len(args) != 1 {
			return errors.New("usage: confirm <session_id>")
		}
		_, err := a.TopUp.ConfirmCheckout(ctx, args[0])
		return reported(err)
	case "history":
		return printHistory(ctx, out, a)
	case "recent":
		return printRecent(ctx, out, a, defaultRecent)
	default:
		return fmt.Errorf("unknown command %q (type `help`)", name)
	}
}
