package tenant

// recordID is the key of the singleton tenant row
const recordID = 1

// StorageQuotaBytes is the fixed quota storage stats are measured against
const StorageQuotaBytes int64 = 1 << 30

// Row is a single result row keyed by column name
type Row map[string]any

// Record is the singleton tenant row
type Record struct {
	ID                int64  `json:"id"`
	BillingCustomerID string `json:"billing_customer_id,omitempty"`
	CreatorUserID     string `json:"creator_user_id,omitempty"`
	CreatorEmail      string `json:"creator_email,omitempty"`
	CreatedAt         int64  `json:"created_at"`
	UpdatedAt         int64  `json:"updated_at"`
}

// StorageStats is a point-in-time size snapshot of a tenant store
type StorageStats struct {
	RawBytes       int64   `json:"rawBytes"`
	Megabytes      float64 `json:"megabytes"`
	PercentOfQuota float64 `json:"percentOfQuota"`
}
