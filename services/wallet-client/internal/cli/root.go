package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"parkease/services/wallet-client/internal/app"
)

// errReported marks failures whose message the display already showed.
var errReported = errors.New("reported")

// Opener builds a wired application that renders to out.
type Opener func(ctx context.Context, out io.Writer) (*app.App, error)

// Runtime is what the commands need from the process.
type Runtime struct {
	Open Opener
	In   io.Reader
	Out  io.Writer
	Err  io.Writer

	// ConfigFile is set from --config before Open runs.
	ConfigFile string
}

// NewRootCommand assembles the wallet command tree.
func NewRootCommand(rt *Runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "wallet-client",
		Short: "ParkEase wallet client",
		Long: `wallet-client signs in to the ParkEase wallet, shows the balance, checks vehicles in
and tops the wallet up by card.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(rt.In)
	root.SetOut(rt.Out)
	root.SetErr(rt.Err)
	root.PersistentFlags().StringVar(&rt.ConfigFile, "config", "", "YAML config file (defaults to $CONFIG_FILE)")

	root.AddCommand(
		newLoginCmd(rt),
		newLogoutCmd(rt),
		newBalanceCmd(rt),
		newCheckInCmd(rt),
		newTopUpCmd(rt),
		newHistoryCmd(rt),
		newShellCmd(rt),
	)
	return root
}

// Execute runs the command tree and prints errors the display has not shown yet.
func Execute(ctx context.Context, rt *Runtime, args []string) error {
	root := NewRootCommand(rt)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintln(rt.Err, "Error:", err)
	}
	return err
}

func reported(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errReported, err)
}

// withApp opens the application and runs its session reducer for the duration of fn.
func withApp(ctx context.Context, rt *Runtime, fn func(a *app.App) error) error {
	a, err := rt.Open(ctx, rt.Out)
	if err != nil {
		return err
	}
	a.Start(ctx)
	defer a.Close()
	return fn(a)
}

// withSession additionally signs in first.
func withSession(ctx context.Context, rt *Runtime, fn func(a *app.App) error) error {
	return withApp(ctx, rt, func(a *app.App) error {
		if err := a.SignIn(ctx); err != nil {
			if errors.Is(err, app.ErrNotSignedIn) {
				return reported(err)
			}
			return err
		}
		return fn(a)
	})
}
