package activity

// ListActivityOptions provides filtering options for listing activity.
type ListActivityOptions struct {
	AuditID      string
	ItemID       *string
	ActivityType *ActivityType
	Limit        int
	Offset       int
}
