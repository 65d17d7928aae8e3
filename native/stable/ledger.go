package stable

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
)

// Storage is the narrow KV surface the receipt ledger persists through.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out *[][]byte) error
}

var (
	receiptPrefix   = []byte("stable/receipt/")
	receiptIndexKey = []byte("stable/receipt/index")
)

// ReceiptKind distinguishes the operation a receipt records.
type ReceiptKind string

const (
	ReceiptKindMint       ReceiptKind = "mint"
	ReceiptKindRedeem     ReceiptKind = "redeem"
	ReceiptKindBondRedeem ReceiptKind = "bond_redeem"
)

// Receipt captures the full outcome of a mutating operation for audit.
// AmountIn is the caller-supplied amount (reserve deposit, stable burn, or
// bond burn); AmountOut is the primary payout in the counter asset.
type Receipt struct {
	ReceiptID    string
	Kind         ReceiptKind
	Account      Address
	AmountIn     *big.Int
	AmountOut    *big.Int
	Fee          *big.Int
	BondComp     *big.Int
	BackstopComp *big.Int
	ObservedAt   int64
}

// Copy returns a deep copy of the receipt for defensive use by callers.
func (r *Receipt) Copy() *Receipt {
	if r == nil {
		return nil
	}
	clone := *r
	for dst, src := range map[**big.Int]*big.Int{
		&clone.AmountIn:     r.AmountIn,
		&clone.AmountOut:    r.AmountOut,
		&clone.Fee:          r.Fee,
		&clone.BondComp:     r.BondComp,
		&clone.BackstopComp: r.BackstopComp,
	} {
		if src != nil {
			*dst = new(big.Int).Set(src)
		}
	}
	return &clone
}

type storedReceipt struct {
	ReceiptID    string
	Kind         string
	Account      [20]byte
	AmountIn     string
	AmountOut    string
	Fee          string
	BondComp     string
	BackstopComp string
	ObservedAt   uint64
}

type receiptIndexEntry struct {
	ReceiptID string
	Observed  uint64
}

// Ledger persists operation receipts within storage.
type Ledger struct {
	store Storage
	clock func() time.Time
}

// NewLedger constructs a receipt ledger bound to the provided storage.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store, clock: time.Now}
}

// SetClock overrides the wall clock used for timestamping receipts.
func (l *Ledger) SetClock(clock func() time.Time) {
	if l == nil || clock == nil {
		return
	}
	l.clock = clock
}

// Append persists the receipt, assigning an identifier when absent.
func (l *Ledger) Append(receipt *Receipt) error {
	if l == nil {
		return fmt.Errorf("stable: ledger not initialised")
	}
	if receipt == nil {
		return fmt.Errorf("stable: receipt must not be nil")
	}
	stored := toStoredReceipt(receipt)
	if stored.ObservedAt == 0 {
		now := l.clock().UTC().Unix()
		if now > 0 {
			stored.ObservedAt = uint64(now)
		}
	}
	if stored.ReceiptID == "" {
		entries, err := l.loadIndex()
		if err != nil {
			return err
		}
		stored.ReceiptID = fmt.Sprintf("%s-%d-%d", stored.Kind, stored.ObservedAt, len(entries)+1)
	}
	key := receiptKey(stored.ReceiptID)
	var existing storedReceipt
	ok, err := l.store.KVGet(key, &existing)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("stable: receipt %s already exists", stored.ReceiptID)
	}
	if err := l.store.KVPut(key, stored); err != nil {
		return err
	}
	receipt.ReceiptID = stored.ReceiptID
	entry := receiptIndexEntry{ReceiptID: stored.ReceiptID, Observed: stored.ObservedAt}
	encoded, err := rlp.EncodeToBytes(entry)
	if err != nil {
		return err
	}
	return l.store.KVAppend(receiptIndexKey, encoded)
}

// Get retrieves a receipt by identifier.
func (l *Ledger) Get(receiptID string) (*Receipt, bool, error) {
	if l == nil {
		return nil, false, fmt.Errorf("stable: ledger not initialised")
	}
	var stored storedReceipt
	ok, err := l.store.KVGet(receiptKey(receiptID), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	receipt, err := fromStoredReceipt(&stored)
	if err != nil {
		return nil, false, err
	}
	return receipt, true, nil
}

// List returns receipts within the supplied inclusive time range, paginated
// by cursor.
func (l *Ledger) List(startTs, endTs int64, cursor string, limit int) ([]*Receipt, string, error) {
	if l == nil {
		return nil, "", fmt.Errorf("stable: ledger not initialised")
	}
	if limit <= 0 {
		limit = 50
	}
	entries, err := l.loadIndex()
	if err != nil {
		return nil, "", err
	}
	filtered := make([]receiptIndexEntry, 0, len(entries))
	for _, entry := range entries {
		observed := int64(entry.Observed)
		if startTs != 0 && observed < startTs {
			continue
		}
		if endTs != 0 && observed > endTs {
			continue
		}
		filtered = append(filtered, entry)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Observed == filtered[j].Observed {
			return filtered[i].ReceiptID < filtered[j].ReceiptID
		}
		return filtered[i].Observed < filtered[j].Observed
	})
	startIdx := 0
	trimmedCursor := strings.TrimSpace(cursor)
	if trimmedCursor != "" {
		for i, entry := range filtered {
			if entry.ReceiptID == trimmedCursor {
				startIdx = i + 1
				break
			}
		}
	}
	receipts := make([]*Receipt, 0, limit)
	nextCursor := ""
	for i := startIdx; i < len(filtered) && len(receipts) < limit; i++ {
		receipt, ok, err := l.Get(filtered[i].ReceiptID)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			continue
		}
		receipts = append(receipts, receipt)
		nextCursor = filtered[i].ReceiptID
	}
	if startIdx+len(receipts) >= len(filtered) {
		nextCursor = ""
	}
	return receipts, nextCursor, nil
}

// ReceiptCSVHeader exposes the canonical CSV header for exports.
var ReceiptCSVHeader = []string{"receiptId", "kind", "account", "amountIn", "amountOut", "fee", "bondComp", "backstopComp", "observedAt"}

// ExportCSV renders receipts within the window as base64 CSV.
func (l *Ledger) ExportCSV(startTs, endTs int64) (string, int, error) {
	if l == nil {
		return "", 0, fmt.Errorf("stable: ledger not initialised")
	}
	receipts, _, err := l.List(startTs, endTs, "", 0)
	if err != nil {
		return "", 0, err
	}
	builder := &strings.Builder{}
	builder.WriteString(strings.Join(ReceiptCSVHeader, ","))
	builder.WriteString("\n")
	for _, receipt := range receipts {
		row := []string{
			receipt.ReceiptID,
			string(receipt.Kind),
			hex.EncodeToString(receipt.Account[:]),
			amountToString(receipt.AmountIn),
			amountToString(receipt.AmountOut),
			amountToString(receipt.Fee),
			amountToString(receipt.BondComp),
			amountToString(receipt.BackstopComp),
			strconv.FormatInt(receipt.ObservedAt, 10),
		}
		builder.WriteString(strings.Join(row, ","))
		builder.WriteString("\n")
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(builder.String()))
	return encoded, len(receipts), nil
}

func (l *Ledger) loadIndex() ([]receiptIndexEntry, error) {
	var raw [][]byte
	if err := l.store.KVGetList(receiptIndexKey, &raw); err != nil {
		return nil, err
	}
	entries := make([]receiptIndexEntry, 0, len(raw))
	for _, encoded := range raw {
		if len(encoded) == 0 {
			continue
		}
		var entry receiptIndexEntry
		if err := rlp.DecodeBytes(encoded, &entry); err != nil {
			return nil, err
		}
		if strings.TrimSpace(entry.ReceiptID) == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func receiptKey(receiptID string) []byte {
	trimmed := strings.TrimSpace(receiptID)
	buf := make([]byte, len(receiptPrefix)+len(trimmed))
	copy(buf, receiptPrefix)
	copy(buf[len(receiptPrefix):], trimmed)
	return buf
}

func toStoredReceipt(receipt *Receipt) storedReceipt {
	stored := storedReceipt{}
	if receipt == nil {
		return stored
	}
	stored.ReceiptID = strings.TrimSpace(receipt.ReceiptID)
	stored.Kind = string(receipt.Kind)
	stored.Account = receipt.Account
	stored.AmountIn = amountToString(receipt.AmountIn)
	stored.AmountOut = amountToString(receipt.AmountOut)
	stored.Fee = amountToString(receipt.Fee)
	stored.BondComp = amountToString(receipt.BondComp)
	stored.BackstopComp = amountToString(receipt.BackstopComp)
	if receipt.ObservedAt > 0 {
		stored.ObservedAt = uint64(receipt.ObservedAt)
	}
	return stored
}

func fromStoredReceipt(stored *storedReceipt) (*Receipt, error) {
	if stored == nil {
		return nil, fmt.Errorf("stable: stored receipt nil")
	}
	receipt := &Receipt{
		ReceiptID:  stored.ReceiptID,
		Kind:       ReceiptKind(stored.Kind),
		Account:    stored.Account,
		ObservedAt: int64(stored.ObservedAt),
	}
	var err error
	for dst, src := range map[**big.Int]string{
		&receipt.AmountIn:     stored.AmountIn,
		&receipt.AmountOut:    stored.AmountOut,
		&receipt.Fee:          stored.Fee,
		&receipt.BondComp:     stored.BondComp,
		&receipt.BackstopComp: stored.BackstopComp,
	} {
		if *dst, err = parseStoredAmount(src); err != nil {
			return nil, fmt.Errorf("stable: corrupted receipt %s: %w", stored.ReceiptID, err)
		}
	}
	return receipt, nil
}

func parseStoredAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func amountToString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
