package models

// Role of an account or actor
const (
	RoleBuyer   = "buyer"
	RoleFactory = "factory"
	RoleAdmin   = "admin"
)

// Actor authenticity levels
const (
	AuthenticityAuthenticated = "authenticated"
	AuthenticityCachedOffline = "cached-offline"
	AuthenticityAnonymous     = "anonymous"
)

// Account statuses
const (
	AccountStatusPending  = "Pending"
	AccountStatusVerified = "Verified"
	AccountStatusBlocked  = "Blocked"
	AccountStatusRejected = "Rejected"
)

// Listing statuses
const (
	ListingStatusPending  = "Pending"
	ListingStatusLive     = "Live"
	ListingStatusSold     = "Sold"
	ListingStatusRejected = "Rejected"
)

// BulkRequest statuses
const (
	RequestStatusOpen    = "Open"
	RequestStatusMatched = "Matched"
	RequestStatusClosed  = "Closed"
)

// Proposal statuses
const (
	ProposalStatusPending     = "Pending"
	ProposalStatusNegotiating = "Negotiating"
	ProposalStatusAccepted    = "Accepted"
	ProposalStatusRejected    = "Rejected"
)

// Transaction statuses
const (
	TransactionStatusCompleted = "Completed"
	TransactionStatusRefunded  = "Refunded"
)

// DefaultPlatformFeePercent is the canonical platform fee applied whenever the
// Settings singleton is absent or carries no fee.
const DefaultPlatformFeePercent = 10.0

// Actor is the resolved identity driving the current session. Exactly one
// Actor is active per session; Authenticity records how it was established.
type Actor struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	Role         string `json:"role"`
	Authenticity string `json:"authenticity"`
}

// Account represents a marketplace member (buyer, factory or admin).
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	Status   string `json:"status"`
	Company  string `json:"company,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
	JoinDate string `json:"join_date"`
}

// Listing is a fabric lot offered for sale. Quantity is kilograms.
type Listing struct {
	ID         string  `json:"id"`
	OwnerID    string  `json:"owner_id"`
	Title      string  `json:"title"`
	FabricType string  `json:"fabric_type"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Status     string  `json:"status"`
	ImageURL   string  `json:"image_url,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// Transaction records a settled purchase. Written only by the remote
// settlement procedure; the engine mirrors what the gateway returns.
type Transaction struct {
	ID         string  `json:"id"`
	ListingID  string  `json:"listing_id"`
	BuyerID    string  `json:"buyer_id"`
	Amount     float64 `json:"amount"`
	Commission float64 `json:"commission"`
	Status     string  `json:"status"`
	PaymentRef string  `json:"payment_ref"`
	CreatedAt  string  `json:"created_at"`
}

// BulkRequest is a buyer's sourcing request. Deadline is immutable after
// creation.
type BulkRequest struct {
	ID          string  `json:"id"`
	BuyerID     string  `json:"buyer_id"`
	FabricType  string  `json:"fabric_type"`
	Quantity    float64 `json:"quantity"`
	TargetPrice float64 `json:"target_price"`
	Deadline    string  `json:"deadline"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
}

// Proposal is a factory's answer to a BulkRequest. At most one proposal per
// request may be Accepted; the gateway enforces this and the engine surfaces
// the resulting conflict.
type Proposal struct {
	ID         string  `json:"id"`
	RequestID  string  `json:"request_id"`
	FactoryID  string  `json:"factory_id"`
	BuyerID    string  `json:"buyer_id"`
	PricePerKg float64 `json:"price_per_kg"`
	TotalPrice float64 `json:"total_price"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
}

// Package is a subscription package. No client-side invariants beyond shape.
type Package struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	DurationDays int     `json:"duration_days"`
	Limits       string  `json:"limits,omitempty"`
}

// Settings is the platform-wide singleton.
type Settings struct {
	ID                  string   `json:"id"`
	PlatformFeePercent  float64  `json:"platform_fee_percent"`
	MaintenanceMode     bool     `json:"maintenance_mode"`
	SupportedCategories []string `json:"supported_categories"`
}
