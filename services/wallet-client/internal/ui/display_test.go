package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleRendering(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, "₹")

	c.ShowUser("Asha")
	c.ShowBalance("50.00")
	c.Notify(Notice{Target: TargetCheckIn, Level: LevelError, Text: "Insufficient balance"})
	c.Notify(Notice{Target: TargetPayment, Level: LevelSuccess, Text: "Top-up complete"})
	c.RedirectToEntry()

	assert.Equal(t,
		"Signed in as Asha\n"+
			"Wallet balance: ₹50.00\n"+
			"[checkin] error: Insufficient balance\n"+
			"[payment] Top-up complete\n"+
			"Signed out. Run `login` to continue.\n",
		buf.String())
}

func TestRecorderFiltersNotices(t *testing.T) {
	r := NewRecorder()
	r.Notify(Notice{Target: TargetAuth, Text: "a"})
	r.Notify(Notice{Target: TargetCheckIn, Text: "b"})
	r.Notify(Notice{Target: TargetCheckIn, Text: "c"})
	r.SetEnabled(ControlCheckIn, false)
	r.SetEnabled(ControlCheckIn, true)

	assert.Len(t, r.Notices(), 3)
	assert.Len(t, r.Notices(TargetCheckIn), 2)
	last, ok := r.LastNotice(TargetCheckIn)
	assert.True(t, ok)
	assert.Equal(t, "c", last.Text)
	_, ok = r.LastNotice(TargetPayment)
	assert.False(t, ok)
	assert.Equal(t, []bool{false, true}, r.Toggles(ControlCheckIn))
}
