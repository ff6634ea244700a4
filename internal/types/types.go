// Package types provides domain models shared across reachpoint components.
//
// Entities are stored as JSON documents; the struct definitions here are the
// typed view of those documents, and Record is the untyped view used by the
// rule engine. Both are produced from the same stored bytes, so a field
// present in one is present in the other.
package types

import "time"

// Record is the untyped view of a stored document: field name to value as
// decoded from JSON (string, float64, bool, nil, []any, map[string]any).
// The rule engine evaluates rule trees against Records.
type Record map[string]any

// Customer field names with dedicated comparison semantics in the rule
// engine. All other fields compare by their native stored type.
const (
	FieldTotalSpend = "totalSpend"
	FieldVisits     = "visits"
	FieldLastActive = "lastActive"
)

// Customer is a CRM customer profile.
type Customer struct {
	ID         CustomerID `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone,omitempty"`
	TotalSpend float64    `json:"totalSpend"`
	Visits     int        `json:"visits"`
	LastActive time.Time  `json:"lastActive"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// OrderStatus enumerates the order lifecycle.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSent      OrderStatus = "sent"
	OrderCancelled OrderStatus = "cancelled"
	OrderCompleted OrderStatus = "completed"
)

// ValidOrderStatus reports whether s is a known order status.
func ValidOrderStatus(s OrderStatus) bool {
	switch s {
	case OrderPending, OrderSent, OrderCancelled, OrderCompleted:
		return true
	}
	return false
}

// OrderItem is a single line item on an order.
type OrderItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Order is a customer purchase. Creating an order also feeds the owning
// customer's totalSpend/visits/lastActive through the write coalescer.
type Order struct {
	ID         OrderID     `json:"id"`
	CustomerID CustomerID  `json:"customerId"`
	Amount     float64     `json:"amount"`
	Items      []OrderItem `json:"items,omitempty"`
	Status     OrderStatus `json:"status"`
	OrderDate  time.Time   `json:"orderDate"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Segment is a named audience defined by a rule tree. AudienceSize is a
// cached value derived from MatchingSubset; reads recompute it live.
type Segment struct {
	ID           SegmentID `json:"id"`
	Name         string    `json:"name"`
	Rules        *RuleNode `json:"rules"`
	Creator      UserID    `json:"creator"`
	AudienceSize int       `json:"audienceSize"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CampaignType enumerates delivery channels.
type CampaignType string

const (
	CampaignEmail CampaignType = "email"
	CampaignSMS   CampaignType = "sms"
	CampaignPush  CampaignType = "push"
)

// ValidCampaignType reports whether t is a known campaign type.
func ValidCampaignType(t CampaignType) bool {
	switch t {
	case CampaignEmail, CampaignSMS, CampaignPush:
		return true
	}
	return false
}

// CampaignStatus enumerates the campaign lifecycle.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
)

// ValidCampaignStatus reports whether s is a known campaign status.
func ValidCampaignStatus(s CampaignStatus) bool {
	switch s {
	case CampaignDraft, CampaignScheduled, CampaignSending, CampaignCompleted:
		return true
	}
	return false
}

// CampaignContent is the message template for a campaign. The body may
// contain a {name} placeholder replaced per recipient at delivery time.
type CampaignContent struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Campaign targets a segment's audience with a message.
type Campaign struct {
	ID           CampaignID      `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Type         CampaignType    `json:"type"`
	SegmentID    SegmentID       `json:"segmentId"`
	Content      CampaignContent `json:"content"`
	Creator      UserID          `json:"creator"`
	AudienceSize int             `json:"audienceSize"`
	Sent         int             `json:"sent"`
	Failed       int             `json:"failed"`
	Status       CampaignStatus  `json:"status"`
	ScheduleDate *time.Time      `json:"scheduleDate,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// MessageStatus enumerates delivery-log states.
type MessageStatus string

const (
	MessagePending MessageStatus = "PENDING"
	MessageSent    MessageStatus = "SENT"
	MessageFailed  MessageStatus = "FAILED"
)

// MessageLog records one personalized message to one customer for one
// campaign. Status transitions PENDING -> SENT/FAILED via delivery receipts.
type MessageLog struct {
	ID           MessageID     `json:"id"`
	CampaignID   CampaignID    `json:"campaignId"`
	CustomerID   CustomerID    `json:"customerId"`
	Message      string        `json:"message"`
	Status       MessageStatus `json:"status"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	SentAt       *time.Time    `json:"sentAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// User is an API account. Users live in a relational table, not the
// document store; password hashes never appear in JSON responses.
type User struct {
	ID           UserID    `json:"id" db:"user_id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
