package store

// Outcome is the discriminant returned by mutation operations. Domain-level
// refusals are outcomes, not errors; callers decide whether to broadcast.
type Outcome int

const (
	// Applied means the mutation took effect and should be broadcast.
	Applied Outcome = iota
	// Denied means the requester is not the message's author.
	Denied
	// NotFound means no live record exists for the id (tombstones included).
	NotFound
	// RateLimited means an edit arrived inside the cool-down window.
	RateLimited
	// AlreadyRead means the reader was present in the receipt set; the
	// operation is idempotent and nothing changed.
	AlreadyRead
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Denied:
		return "denied"
	case NotFound:
		return "not-found"
	case RateLimited:
		return "rate-limited"
	case AlreadyRead:
		return "already"
	default:
		return "unknown"
	}
}
