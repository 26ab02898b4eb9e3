// Package events provides event management functionality.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	TradeAnalyzed  EventType = "TRADE_ANALYZED"
	TradeClosed    EventType = "TRADE_CLOSED"
	AuditCompleted EventType = "AUDIT_COMPLETED"
	RuleEvolved    EventType = "RULE_EVOLVED"
	PriceObserved  EventType = "PRICE_OBSERVED"
	BackupFinished EventType = "BACKUP_FINISHED"
	SystemReset    EventType = "SYSTEM_RESET"
	ErrorOccurred  EventType = "ERROR_OCCURRED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Module    string                 `json:"module"`
	Data      map[string]interface{} `json:"data"`
}
