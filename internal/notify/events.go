package notify

import (
	"fmt"
	"strings"

	"github.com/helixtrade/helixbot/internal/domain"
)

// Event types used with Notifier.Notify. Configure the allowed list to
// control which of these actually reach the senders.
const (
	EventPositionClosed    = "position_closed"
	EventExitFailed        = "exit_failed"
	EventInconsistentState = "inconsistent_state"
)

// FormatExitEvent renders an owner-facing title and message for a closed
// position.
func FormatExitEvent(ev domain.ExitEvent) (title, message string) {
	title = fmt.Sprintf("Position closed: %s", ev.Instrument)

	var b strings.Builder
	fmt.Fprintf(&b, "*%s* %s %s\n", strings.ToUpper(string(ev.Side)), ev.Instrument, reasonLabel(ev.Reason))
	fmt.Fprintf(&b, "Entry: %.8g\n", ev.EntryPrice)
	fmt.Fprintf(&b, "Exit: %.8g\n", ev.ClosePrice)
	fmt.Fprintf(&b, "P&L: %+.4f (%+.2f%%)\n", ev.PnLAbsolute, ev.PnLPercent)
	fmt.Fprintf(&b, "Ref: `%s`", ev.Reference)
	return title, b.String()
}

func reasonLabel(r domain.ExitReason) string {
	switch r {
	case domain.ExitReasonTakeProfit:
		return "hit take profit"
	case domain.ExitReasonStopLoss:
		return "hit stop loss"
	case domain.ExitReasonTrailingStop:
		return "hit trailing stop"
	case domain.ExitReasonManual:
		return "closed manually"
	default:
		return string(r)
	}
}
