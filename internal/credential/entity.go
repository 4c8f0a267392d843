package credential

// Claims is the decoded payload of the current token.
// Times are epoch seconds; ExpiresAt is 0 when the token carries no exp.
type Claims struct {
	Subject   string `json:"sub"`
	Role      string `json:"role"`
	TenantID  string `json:"tenantId"`
	SessionID string `json:"sid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// HasExpiry reports whether the token declared an exp claim.
func (c Claims) HasExpiry() bool { return c.ExpiresAt > 0 }

// User is the authenticated principal's profile as returned by the backend.
type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	CompanyID   int64  `json:"companyId"`
	Avatar      string `json:"avatar,omitempty"`
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

// Event is a change notification emitted by Store.
type Event int

const (
	EventSaved Event = iota + 1
	EventCleared
)

func (e Event) String() string {
	switch e {
	case EventSaved:
		return "saved"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}
