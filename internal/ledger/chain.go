package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"medvault/pkg/canonhash"
)

// Key layout:
//
//	entry_<ref>    JSON Entry
//	index_<height> ref
//	height_latest  decimal height of the newest entry
const (
	entryPrefix = "entry_"
	indexPrefix = "index_"
	heightKey   = "height_latest"
)

var genesisHash = hex.EncodeToString(make([]byte, sha256.Size))

var fingerprintPattern = regexp.MustCompile(`^sha256:[0-9a-f]{64}$`)

// Entry is one link of the hash chain.
type Entry struct {
	Ref         string    `json:"ref"`
	Height      uint64    `json:"height"`
	Fingerprint string    `json:"fingerprint"`
	PrevHash    string    `json:"prev_hash"`
	Hash        string    `json:"hash"`
	AnchoredAt  time.Time `json:"anchored_at"`
}

func (e Entry) computeHash() string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatUint(e.Height, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(e.Ref))
	h.Write([]byte{'|'})
	h.Write([]byte(e.Fingerprint))
	h.Write([]byte{'|'})
	h.Write([]byte(e.AnchoredAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// Chain is an embedded append-only hash chain stored in LevelDB. It backs
// cmd/ledgerd and local development; production deployments talk to a remote
// node through HTTPClient.
type Chain struct {
	mu  sync.Mutex // serializes appends
	db  *leveldb.DB
	now func() time.Time
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithChainClock overrides the anchoring timestamp source.
func WithChainClock(now func() time.Time) ChainOption {
	return func(c *Chain) {
		if now != nil {
			c.now = now
		}
	}
}

// OpenChain opens (or creates) a chain stored under dir.
func OpenChain(dir string, opts ...ChainOption) (*Chain, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger db %s: %w", dir, err)
	}
	return newChain(db, opts...), nil
}

// NewMemChain returns a chain held entirely in memory.
func NewMemChain(opts ...ChainOption) (*Chain, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open in-memory ledger db: %w", err)
	}
	return newChain(db, opts...), nil
}

func newChain(db *leveldb.DB, opts ...ChainOption) *Chain {
	c := &Chain{db: db, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) Close() error {
	return c.db.Close()
}

// Height returns the number of anchored entries.
func (c *Chain) Height() (uint64, error) {
	raw, err := c.db.Get([]byte(heightKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

// Anchor appends fingerprint to the chain and returns the new entry's ref.
func (c *Chain) Anchor(ctx context.Context, fingerprint string) (string, error) {
	const op = "anchor"
	if err := fromContext(ctx, op, ctx.Err()); err != nil {
		return "", err
	}
	if !fingerprintPattern.MatchString(fingerprint) {
		return "", NewError(CategoryRejected, op, "fingerprint must be sha256:<64 hex chars>", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	height, err := c.Height()
	if err != nil {
		return "", NewError(CategoryInternal, op, "read chain height", err)
	}
	prevHash := genesisHash
	if height > 0 {
		prev, err := c.entryAt(height)
		if err != nil {
			return "", NewError(CategoryInternal, op, "read chain tip", err)
		}
		prevHash = prev.Hash
	}

	entry := Entry{
		Ref:         uuid.NewString(),
		Height:      height + 1,
		Fingerprint: fingerprint,
		PrevHash:    prevHash,
		AnchoredAt:  c.now().UTC(),
	}
	entry.Hash = entry.computeHash()

	data, err := json.Marshal(entry)
	if err != nil {
		return "", NewError(CategoryInternal, op, "encode entry", err)
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(entryPrefix+entry.Ref), data)
	batch.Put([]byte(indexPrefix+strconv.FormatUint(entry.Height, 10)), []byte(entry.Ref))
	batch.Put([]byte(heightKey), []byte(strconv.FormatUint(entry.Height, 10)))
	if err := c.db.Write(batch, nil); err != nil {
		return "", NewError(CategoryInternal, op, "write entry", err)
	}
	return entry.Ref, nil
}

// Check compares fingerprint with the entry anchored under ref. Unknown refs
// are a definite mismatch.
func (c *Chain) Check(ctx context.Context, ref, fingerprint string) (CheckResult, error) {
	const op = "check"
	if err := fromContext(ctx, op, ctx.Err()); err != nil {
		return CheckResult{}, err
	}

	entry, err := c.Entry(ref)
	if errors.Is(err, leveldb.ErrNotFound) {
		return CheckResult{Match: false, Explanation: fmt.Sprintf("no anchored entry for reference %s", ref)}, nil
	}
	if err != nil {
		return CheckResult{}, NewError(CategoryInternal, op, "read entry", err)
	}

	if !canonhash.Equal(entry.Fingerprint, fingerprint) {
		explanation := fmt.Sprintf("fingerprint mismatch at height %d: anchored %s, presented %s",
			entry.Height, entry.Fingerprint, fingerprint)
		return CheckResult{Match: false, Explanation: explanation}, nil
	}
	explanation := fmt.Sprintf("fingerprint matches entry anchored at height %d on %s",
		entry.Height, entry.AnchoredAt.Format(time.RFC3339))
	return CheckResult{Match: true, Explanation: explanation}, nil
}

// Entry loads the entry anchored under ref. Missing refs return leveldb.ErrNotFound.
func (c *Chain) Entry(ref string) (Entry, error) {
	raw, err := c.db.Get([]byte(entryPrefix+ref), nil)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode entry %s: %w", ref, err)
	}
	return entry, nil
}

func (c *Chain) entryAt(height uint64) (Entry, error) {
	ref, err := c.db.Get([]byte(indexPrefix+strconv.FormatUint(height, 10)), nil)
	if err != nil {
		return Entry{}, fmt.Errorf("index %d: %w", height, err)
	}
	return c.Entry(string(ref))
}

// VerifyReport summarizes a full chain walk.
type VerifyReport struct {
	Height   uint64 `json:"height"`
	Valid    bool   `json:"valid"`
	BrokenAt uint64 `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Verify walks every entry from genesis and checks hashes and links.
func (c *Chain) Verify(ctx context.Context) (VerifyReport, error) {
	const op = "verify"
	height, err := c.Height()
	if err != nil {
		return VerifyReport{}, NewError(CategoryInternal, op, "read chain height", err)
	}

	report := VerifyReport{Height: height, Valid: true}
	prevHash := genesisHash
	for h := uint64(1); h <= height; h++ {
		if err := fromContext(ctx, op, ctx.Err()); err != nil {
			return VerifyReport{}, err
		}
		entry, err := c.entryAt(h)
		if err != nil {
			return broken(report, h, "missing entry"), nil
		}
		switch {
		case entry.Height != h:
			return broken(report, h, "height does not match index"), nil
		case entry.PrevHash != prevHash:
			return broken(report, h, "previous hash link broken"), nil
		case entry.computeHash() != entry.Hash:
			return broken(report, h, "entry hash does not match contents"), nil
		}
		prevHash = entry.Hash
	}
	return report, nil
}

func broken(r VerifyReport, height uint64, reason string) VerifyReport {
	r.Valid = false
	r.BrokenAt = height
	r.Reason = reason
	return r
}

var _ Client = (*Chain)(nil)
