package ui

import (
	"fmt"
	"io"
	"sync"
)

// Level grades a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Target names the view area a notice belongs to.
type Target string

const (
	TargetAuth    Target = "auth"
	TargetBalance Target = "balance"
	TargetCheckIn Target = "checkin"
	TargetPayment Target = "payment"
	TargetHistory Target = "history"
)

// Control is a user affordance that can be disabled while its own call is in flight.
type Control string

const (
	ControlCheckIn Control = "checkin"
	ControlTopUp   Control = "topup"
)

// Notice is one user-facing message.
type Notice struct {
	Target Target
	Level  Level
	Text   string
}

// Display is everything the orchestration core renders.
type Display interface {
	ShowUser(label string)
	ShowBalance(formatted string)
	Notify(n Notice)
	SetEnabled(c Control, enabled bool)
	RedirectToEntry()
}

// Console renders to a writer, one line per event.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	currency string
}

// NewConsole returns a console display prefixing balances with currency.
func NewConsole(out io.Writer, currency string) *Console {
	return &Console{out: out, currency: currency}
}

func (c *Console) ShowUser(label string) {
	c.printf("Signed in as %s\n", label)
}

func (c *Console) ShowBalance(formatted string) {
	c.printf("Wallet balance: %s%s\n", c.currency, formatted)
}

func (c *Console) Notify(n Notice) {
	switch n.Level {
	case LevelError:
		c.printf("[%s] error: %s\n", n.Target, n.Text)
	default:
		c.printf("[%s] %s\n", n.Target, n.Text)
	}
}

// SetEnabled is a no-op on a console; commands run one at a time.
func (c *Console) SetEnabled(Control, bool) {}

func (c *Console) RedirectToEntry() {
	c.printf("Signed out. Run `login` to continue.\n")
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
