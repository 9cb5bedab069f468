package permission

import "context"

// Checker opens a per-request session for a user. Subordinate sets and
// group lookups are cached on the session and dropped with it.
type Checker interface {
	ForUser(ctx context.Context, userID int64) (Session, error)
}

type Session interface {
	UserID() int64
	NetworkID() int64
	// Check returns the permission row that allowed the request, or a
	// PermissionDenied / EmploymentInactive error.
	Check(ctx context.Context, req Request) (GroupWorkerDayPermission, error)
	CanChangeProtected() bool
	// BlackListSymbol of the acting user, if any.
	BlackListSymbol() *string
}
