package approval

import "context"

type Service interface {
	Approve(ctx context.Context, req Request) (Result, error)
	RequestApprove(ctx context.Context, req RequestApproveRequest) error
}
