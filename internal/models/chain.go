package models

import (
	"time"

	"gorm.io/gorm"
)

// Chain is a network from the network table, persisted so the active selection survives restarts
type Chain struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	NetworkID          uint64         `gorm:"column:chain_id;uniqueIndex;not null" json:"chain_id"` // The blockchain's chain ID (e.g. 56 for BNB Smart Chain)
	Name               string         `gorm:"not null" json:"name"`
	NativeSymbol       string         `json:"native_symbol"`
	RPC                string         `gorm:"not null" json:"rpc"` // primary HTTP endpoint
	RPCURLs            []string       `gorm:"serializer:json" json:"rpc_urls"`
	WSURLs             []string       `gorm:"serializer:json" json:"ws_urls"`
	ExplorerURL        string         `json:"explorer_url"`
	MarketplaceAddress string         `json:"marketplace_address,omitempty"`
	IsActive           bool           `gorm:"default:false" json:"is_active"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}
