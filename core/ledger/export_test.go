package ledger

import "time"

// SetNowFunc swaps the service clock and returns a func restoring it.
func SetNowFunc(f func() time.Time) func() {
	old := nowFunc
	nowFunc = f
	return func() { nowFunc = old }
}
