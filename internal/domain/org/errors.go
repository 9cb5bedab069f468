package org

import "errors"

var (
	ErrNetworkNotFound       = errors.New("network not found")
	ErrShopNotFound          = errors.New("shop not found")
	ErrWorkTypeNotFound      = errors.New("work type not found")
	ErrShopMonthStatNotFound = errors.New("shop month stat not found")
)
