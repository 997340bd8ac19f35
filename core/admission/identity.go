package admission

import "github.com/eduplatform/gatekeeper/pkg/clientip"

// Tier selects which limit table applies to a client.
type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
	TierPremium       Tier = "premium"
	TierAdmin         Tier = "admin"
)

// Request is the request metadata the admission layer needs.
// Authentication happens upstream; UserID is empty for anonymous callers.
type Request struct {
	UserID  string
	Premium bool
	Staff   bool

	// ForwardedFor is the raw forwarded-for chain; its first entry is authoritative.
	ForwardedFor string
	RemoteAddr   string

	Path   string
	Method string
}

// Identity is the resolved client of a request.
type Identity struct {
	// Key is "user:<id>" or "ip:<address>".
	Key     string
	Tier    Tier
	Address string
}

// Identify resolves the client key and tier of r. A user id always wins
// over the network address.
func Identify(r Request) Identity {
	id := Identity{Address: address(r), Tier: tier(r)}
	if r.UserID != "" {
		id.Key = "user:" + r.UserID
	} else {
		id.Key = "ip:" + id.Address
	}
	return id
}

func address(r Request) string {
	if ip, ok := clientip.FirstForwarded(r.ForwardedFor); ok {
		return ip
	}
	if addr := clientip.StripPort(r.RemoteAddr); addr != "" {
		return addr
	}
	return "unknown"
}

func tier(r Request) Tier {
	switch {
	case r.UserID == "":
		return TierAnonymous
	case r.Staff:
		return TierAdmin
	case r.Premium:
		return TierPremium
	default:
		return TierAuthenticated
	}
}
