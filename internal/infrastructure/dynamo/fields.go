package dynamo

// DynamoDB attribute names used in update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldPhone       = "phone"
	fieldWhopUserID  = "whop_user_id"
	fieldEmail       = "email"
	fieldOwnerID     = "owner_id"
	fieldPendingCode = "pending_code"
	fieldVerifiedAt  = "verified_at"
	fieldAlerts      = "alerts"
)
