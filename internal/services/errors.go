package services

import "errors"

var (
	// ErrListingNotFound is returned when the contract reports a zero seller for an id
	ErrListingNotFound = errors.New("listing not found")
	// ErrWrongNetwork is returned when the wallet is not on the marketplace network
	ErrWrongNetwork = errors.New("wallet is connected to the wrong network")
	// ErrNetworkChanged is returned when the wallet switched network after a write was prepared
	ErrNetworkChanged = errors.New("wallet network changed during the write")
	// ErrWalletDisconnected is returned when a write is attempted without a connected wallet
	ErrWalletDisconnected = errors.New("wallet is not connected")
	// ErrInvalidDiscoveryRange is returned when a scan's bounds leave nothing to scan
	ErrInvalidDiscoveryRange = errors.New("invalid discovery range")
	// ErrSigningRequestNotFound is returned for an unknown browser signing request
	ErrSigningRequestNotFound = errors.New("signing request not found")
	// ErrSigningRequestClosed is returned when a signing request was already answered or expired
	ErrSigningRequestClosed = errors.New("signing request is closed")
	// ErrSigningExpired is returned when nobody signed a request in time
	ErrSigningExpired = errors.New("signing request expired")
	// ErrTrackerBusy is returned when a write is started while another one is still being submitted
	ErrTrackerBusy = errors.New("a transaction is already being submitted")
	// ErrTrackerClosed is returned when a closed tracker is reused
	ErrTrackerClosed = errors.New("transaction tracker is closed")
)
