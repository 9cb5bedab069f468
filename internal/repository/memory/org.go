package memory

import (
	"context"
	"slices"
	"time"

	"github.com/cmlabs-hris/timetable-core/internal/domain/org"
)

type OrgRepository struct {
	s *Store
}

func (r *OrgRepository) GetNetwork(ctx context.Context, id int64) (org.Network, error) {
	var (
		n  org.Network
		ok bool
	)
	r.s.read(func(t *tables) { n, ok = t.networks[id] })
	if !ok {
		return org.Network{}, org.ErrNetworkNotFound
	}
	return n, nil
}

func (r *OrgRepository) ListNetworkConnects(ctx context.Context, networkID int64) ([]org.NetworkConnect, error) {
	var out []org.NetworkConnect
	r.s.read(func(t *tables) {
		for _, c := range t.connects {
			if c.ClientID == networkID || c.OutsourcingID == networkID {
				out = append(out, c)
			}
		}
	})
	return out, nil
}

func (r *OrgRepository) GetShop(ctx context.Context, id int64) (org.Shop, error) {
	var (
		s  org.Shop
		ok bool
	)
	r.s.read(func(t *tables) { s, ok = t.shops[id] })
	if !ok || s.DeletedAt != nil {
		return org.Shop{}, org.ErrShopNotFound
	}
	return s, nil
}

func (r *OrgRepository) ListShops(ctx context.Context, filter org.ShopFilter) ([]org.Shop, error) {
	var out []org.Shop
	r.s.read(func(t *tables) {
		for _, s := range t.shops {
			if s.DeletedAt != nil && !filter.IncludeDeleted {
				continue
			}
			if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, s.ID) {
				continue
			}
			if filter.NetworkID != nil && s.NetworkID != *filter.NetworkID {
				continue
			}
			out = append(out, s)
		}
	})
	slices.SortFunc(out, func(a, b org.Shop) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (r *OrgRepository) GetWorkType(ctx context.Context, id int64) (org.WorkType, error) {
	var (
		wt org.WorkType
		ok bool
	)
	r.s.read(func(t *tables) { wt, ok = t.workTypes[id] })
	if !ok || wt.DeletedAt != nil {
		return org.WorkType{}, org.ErrWorkTypeNotFound
	}
	return wt, nil
}

func (r *OrgRepository) ListWorkTypes(ctx context.Context, shopIDs []int64) ([]org.WorkType, error) {
	var out []org.WorkType
	r.s.read(func(t *tables) {
		for _, wt := range t.workTypes {
			if wt.DeletedAt == nil && (len(shopIDs) == 0 || slices.Contains(shopIDs, wt.ShopID)) {
				out = append(out, wt)
			}
		}
	})
	slices.SortFunc(out, func(a, b org.WorkType) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (r *OrgRepository) ListOperationTypes(ctx context.Context, workTypeIDs []int64) ([]org.OperationType, error) {
	var out []org.OperationType
	r.s.read(func(t *tables) {
		for _, op := range t.opTypes {
			if slices.Contains(workTypeIDs, op.WorkTypeID) {
				out = append(out, op)
			}
		}
	})
	slices.SortFunc(out, func(a, b org.OperationType) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (r *OrgRepository) ListExchangeSettings(ctx context.Context, networkID int64) ([]org.ExchangeSettings, error) {
	var out []org.ExchangeSettings
	r.s.read(func(t *tables) {
		for _, es := range t.exchange {
			if es.NetworkID == networkID {
				out = append(out, es)
			}
		}
	})
	return out, nil
}

func (r *OrgRepository) IsBlacklisted(ctx context.Context, symbol string, shopIDs []int64) (bool, error) {
	var hit bool
	r.s.read(func(t *tables) {
		for _, id := range shopIDs {
			if slices.Contains(t.blacklist[id], symbol) {
				hit = true
				return
			}
		}
	})
	return hit, nil
}

func (r *OrgRepository) GetShopMonthStat(ctx context.Context, shopID int64, month time.Time) (org.ShopMonthStat, error) {
	var (
		st org.ShopMonthStat
		ok bool
	)
	r.s.read(func(t *tables) { st, ok = t.monthStats[monthKey{shopID, month}] })
	if !ok {
		return org.ShopMonthStat{}, org.ErrShopMonthStatNotFound
	}
	return st, nil
}

func (r *OrgRepository) MarkShopMonthApproved(ctx context.Context, shopID int64, month time.Time, at time.Time) error {
	return r.s.write(ctx, func(t *tables) error {
		t.monthStats[monthKey{shopID, month}] = org.ShopMonthStat{
			ShopID:     shopID,
			Month:      month,
			IsApproved: true,
			ApprovedAt: &at,
		}
		return nil
	})
}

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
