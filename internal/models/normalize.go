package models

import (
	"strconv"
	"strings"
)

// Entity kinds. The values double as the gateway collection names.
const (
	KindAccount     = "accounts"
	KindListing     = "listings"
	KindTransaction = "transactions"
	KindBulkRequest = "bulk_requests"
	KindProposal    = "proposals"
	KindPackage     = "packages"
	KindSettings    = "settings"
)

// Kinds lists every entity kind in full-fetch order.
var Kinds = []string{
	KindAccount,
	KindListing,
	KindTransaction,
	KindBulkRequest,
	KindProposal,
	KindPackage,
	KindSettings,
}

// Record is anything the cache store can hold. RecordID returns the opaque
// identifier used for dedup and splice-by-id.
type Record interface {
	RecordID() string
}

func (a Account) RecordID() string     { return a.ID }
func (l Listing) RecordID() string     { return l.ID }
func (t Transaction) RecordID() string { return t.ID }
func (b BulkRequest) RecordID() string { return b.ID }
func (p Proposal) RecordID() string    { return p.ID }
func (p Package) RecordID() string     { return p.ID }
func (s Settings) RecordID() string    { return s.ID }

// Normalize maps a raw gateway row of the given kind to its canonical record.
// Raw rows never enter the store directly; every fetch and every confirmed
// mutation passes through here. Absent optional fields receive defaults:
// missing quantity/price -> 0, missing status -> the kind's Pending/Open
// state, missing platform fee -> DefaultPlatformFeePercent.
func Normalize(kind string, row map[string]any) (Record, bool) {
	switch kind {
	case KindAccount:
		return NormalizeAccount(row), true
	case KindListing:
		return NormalizeListing(row), true
	case KindTransaction:
		return NormalizeTransaction(row), true
	case KindBulkRequest:
		return NormalizeBulkRequest(row), true
	case KindProposal:
		return NormalizeProposal(row), true
	case KindPackage:
		return NormalizePackage(row), true
	case KindSettings:
		return NormalizeSettings(row), true
	}
	return nil, false
}

// NormalizeAccount maps a raw account row. Missing status defaults to
// Pending, missing role to buyer.
func NormalizeAccount(row map[string]any) Account {
	return Account{
		ID:       str(row, "id"),
		Name:     str(row, "name", "display_name"),
		Email:    str(row, "email"),
		Role:     strDefault(row, RoleBuyer, "role"),
		Status:   strDefault(row, AccountStatusPending, "status"),
		Company:  str(row, "company", "company_name"),
		Phone:    str(row, "phone"),
		Address:  str(row, "address"),
		PhotoURL: str(row, "photo_url", "avatar_url"),
		JoinDate: str(row, "join_date", "created_at"),
	}
}

// NormalizeListing maps a raw listing row. Missing quantity and price default
// to 0, missing status to Pending.
func NormalizeListing(row map[string]any) Listing {
	return Listing{
		ID:         str(row, "id"),
		OwnerID:    str(row, "owner_id", "seller_id"),
		Title:      str(row, "title", "name"),
		FabricType: str(row, "fabric_type", "category"),
		Quantity:   num(row, "quantity"),
		Price:      num(row, "price"),
		Status:     strDefault(row, ListingStatusPending, "status"),
		ImageURL:   str(row, "image_url"),
		CreatedAt:  str(row, "created_at"),
	}
}

func NormalizeTransaction(row map[string]any) Transaction {
	return Transaction{
		ID:         str(row, "id"),
		ListingID:  str(row, "listing_id"),
		BuyerID:    str(row, "buyer_id"),
		Amount:     num(row, "amount"),
		Commission: num(row, "commission", "platform_fee"),
		Status:     strDefault(row, TransactionStatusCompleted, "status"),
		PaymentRef: str(row, "payment_ref", "payment_reference"),
		CreatedAt:  str(row, "created_at"),
	}
}

// NormalizeBulkRequest maps a raw bulk-sourcing request row. Missing status
// defaults to Open.
func NormalizeBulkRequest(row map[string]any) BulkRequest {
	return BulkRequest{
		ID:          str(row, "id"),
		BuyerID:     str(row, "buyer_id"),
		FabricType:  str(row, "fabric_type", "category"),
		Quantity:    num(row, "quantity"),
		TargetPrice: num(row, "target_price"),
		Deadline:    str(row, "deadline"),
		Status:      strDefault(row, RequestStatusOpen, "status"),
		CreatedAt:   str(row, "created_at"),
	}
}

func NormalizeProposal(row map[string]any) Proposal {
	return Proposal{
		ID:         str(row, "id"),
		RequestID:  str(row, "request_id"),
		FactoryID:  str(row, "factory_id"),
		BuyerID:    str(row, "buyer_id"),
		PricePerKg: num(row, "price_per_kg"),
		TotalPrice: num(row, "total_price"),
		Status:     strDefault(row, ProposalStatusPending, "status"),
		CreatedAt:  str(row, "created_at"),
	}
}

func NormalizePackage(row map[string]any) Package {
	return Package{
		ID:           str(row, "id"),
		Name:         str(row, "name"),
		Price:        num(row, "price"),
		DurationDays: int(num(row, "duration_days")),
		Limits:       str(row, "limits"),
	}
}

// NormalizeSettings maps the settings singleton. A missing or non-positive
// fee falls back to the canonical default.
func NormalizeSettings(row map[string]any) Settings {
	fee := num(row, "platform_fee_percent", "fee_percent")
	if fee <= 0 {
		fee = DefaultPlatformFeePercent
	}
	return Settings{
		ID:                  strDefault(row, "platform", "id"),
		PlatformFeePercent:  fee,
		MaintenanceMode:     boolean(row, "maintenance_mode"),
		SupportedCategories: strs(row, "supported_categories"),
	}
}

// str returns the first present key coerced to a string.
func str(row map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		case []byte:
			return string(s)
		default:
			continue
		}
	}
	return ""
}

func strDefault(row map[string]any, def string, keys ...string) string {
	if s := str(row, keys...); s != "" {
		return s
	}
	return def
}

// num coerces numeric shapes that arrive from JSON decoding or database
// drivers. Anything unparseable counts as absent.
func num(row map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := row[k]
		if !ok || v == nil {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case []byte:
			if f, err := strconv.ParseFloat(string(n), 64); err == nil {
				return f
			}
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func boolean(row map[string]any, keys ...string) bool {
	for _, k := range keys {
		switch v := row[k].(type) {
		case bool:
			return v
		case string:
			return v == "true" || v == "t"
		}
	}
	return false
}

// strs accepts either a decoded JSON array or a comma-separated string.
func strs(row map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := row[k].(type) {
		case []string:
			return v
		case []any:
			out := make([]string, 0, len(v))
			for _, e := range v {
				if s, ok := e.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case string:
			if v == "" {
				continue
			}
			parts := strings.Split(v, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			return parts
		}
	}
	return nil
}
