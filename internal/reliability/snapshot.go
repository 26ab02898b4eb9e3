package reliability

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/chartwatch/internal/modules/journal"
	"github.com/aristath/chartwatch/internal/modules/rules"
)

// Snapshot is a point-in-time capture of everything needed to rebuild
// the journal and rule state, encoded as msgpack inside the archive.
type Snapshot struct {
	CreatedAt     time.Time       `msgpack:"created_at"`
	TradeCount    int             `msgpack:"trade_count"`
	Trades        []journal.Trade `msgpack:"trades"`
	RuleDoc       rules.Document  `msgpack:"rule_doc"`
	FormatVersion int             `msgpack:"format_version"`
}

const snapshotFormatVersion = 1

// BuildSnapshot captures the current journal and rule state
func BuildSnapshot(trades []journal.Trade, doc rules.Document) Snapshot {
	return Snapshot{
		CreatedAt:     time.Now().UTC(),
		TradeCount:    len(trades),
		Trades:        trades,
		RuleDoc:       doc,
		FormatVersion: snapshotFormatVersion,
	}
}

// Encode serializes the snapshot
func (s Snapshot) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a msgpack snapshot
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if s.FormatVersion > snapshotFormatVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot format version %d", s.FormatVersion)
	}
	return s, nil
}
