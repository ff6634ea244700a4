package types

import (
	"time"

	"github.com/google/uuid"
)

// Entity identifiers are UUIDv7 strings. Time-ordered IDs keep sequential
// inserts clustered and give every document a stable creation-order tiebreak.
type (
	CustomerID string
	OrderID    string
	SegmentID  string
	CampaignID string
	MessageID  string
	UserID     string
)

// NewCustomerID generates a UUIDv7 customer identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewCustomerID() CustomerID { return CustomerID(newID()) }

// NewOrderID generates a UUIDv7 order identifier.
func NewOrderID() OrderID { return OrderID(newID()) }

// NewSegmentID generates a UUIDv7 segment identifier.
func NewSegmentID() SegmentID { return SegmentID(newID()) }

// NewCampaignID generates a UUIDv7 campaign identifier.
func NewCampaignID() CampaignID { return CampaignID(newID()) }

// NewMessageID generates a UUIDv7 message-log identifier.
func NewMessageID() MessageID { return MessageID(newID()) }

// NewUserID generates a UUIDv7 user identifier.
func NewUserID() UserID { return UserID(newID()) }

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ValidID reports whether s is a well-formed UUID. Handlers use it to reject
// malformed path parameters before touching the store.
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// IDTime extracts the timestamp embedded in a UUIDv7 identifier.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func IDTime(id string) time.Time {
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
