package service

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")

	// Бизнес-исходы: возвращаются вызывающему как типизированный результат,
	// инфраструктурные сбои хранилища приходят отдельно, обёрнутым error.
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrInvalidStateTransition = errors.New("invalid reservation state transition")

	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrInvalidArgument = errors.New("invalid argument")

	ErrProductNotFound = errors.New("product not found")
	ErrInactiveProduct = errors.New("product is inactive")
	ErrStockNotFound   = errors.New("stock row not found for product")
	ErrStockConflict   = errors.New("on-hand cannot drop below reserved")

	ErrReservationActive = errors.New("reservation is still active")

	// Счётчики леджера разошлись с записями резерваций — это повод для алерта,
	// а не штатный исход.
	ErrLedgerOutOfSync = errors.New("stock ledger out of sync with reservations")
)
