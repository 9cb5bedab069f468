package org

import (
	"context"
	"time"
)

type ShopFilter struct {
	IDs            []int64
	NetworkID      *int64
	IncludeDeleted bool
}

type Repository interface {
	GetNetwork(ctx context.Context, id int64) (Network, error)
	ListNetworkConnects(ctx context.Context, networkID int64) ([]NetworkConnect, error)

	GetShop(ctx context.Context, id int64) (Shop, error)
	ListShops(ctx context.Context, filter ShopFilter) ([]Shop, error)

	GetWorkType(ctx context.Context, id int64) (WorkType, error)
	ListWorkTypes(ctx context.Context, shopIDs []int64) ([]WorkType, error)
	ListOperationTypes(ctx context.Context, workTypeIDs []int64) ([]OperationType, error)

	ListExchangeSettings(ctx context.Context, networkID int64) ([]ExchangeSettings, error)
	// IsBlacklisted reports whether symbol is on the vacancy blacklist of
	// any of shopIDs.
	IsBlacklisted(ctx context.Context, symbol string, shopIDs []int64) (bool, error)

	GetShopMonthStat(ctx context.Context, shopID int64, month time.Time) (ShopMonthStat, error)
	MarkShopMonthApproved(ctx context.Context, shopID int64, month time.Time, at time.Time) error
}
