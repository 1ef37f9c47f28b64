package resources

// orderRank orders the Order statuses along the only path an ACME server may
// move them: pending, ready, processing, then a terminal valid or invalid.
var orderRank = map[string]int{
	"pending":    0,
	"ready":      1,
	"processing": 2,
	"valid":      3,
	"invalid":    3,
}

// Terminal reports whether an Order, Authorization or Challenge with the given
// status will never change status again.
func Terminal(status string) bool {
	switch status {
	case "valid", "invalid", "deactivated", "expired", "revoked":
		return true
	}
	return false
}

// OrderTransitionAllowed reports whether an Order may move from status from
// to status to. Repeating the same status is always allowed; "invalid" may be
// reached from any non-terminal status.
func OrderTransitionAllowed(from, to string) bool {
	if from == to || from == "" {
		return true
	}
	if Terminal(from) {
		return false
	}
	if to == "invalid" {
		return true
	}
	fromRank, ok := orderRank[from]
	if !ok {
		return true
	}
	toRank, ok := orderRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}
