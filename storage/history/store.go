package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"metanode/core/events"
	"metanode/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultLimit = 100
	maxLimit     = 1000
)

var ErrUnsupportedDriver = errors.New("history: unsupported driver")

// accountKeys lists, in priority order, the attributes naming the account an
// event concerns.
var accountKeys = []string{"addr", "owner", "from", "funder", "admin"}

// Store indexes committed events into SQL. It implements events.Emitter so it
// can hang off the node's fan-out.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the configured database and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", driver, err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("history: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db, logger: slog.Default().With("component", "history")}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Index failures are logged, never raised,
// since the ledger has already committed.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	if err := s.Index(context.Background(), evt); err != nil {
		s.logger.Warn("index event failed", "type", evt.EventType(), "error", err)
	}
}

// Index stores a single event. Re-indexing an identical event is a no-op.
func (s *Store) Index(ctx context.Context, evt events.Event) error {
	if s == nil {
		return fmt.Errorf("history: store not initialised")
	}
	record, err := newRecord(evt)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint"}}, DoNothing: true}).
		Create(record).Error
}

func newRecord(evt events.Event) (*Record, error) {
	if evt == nil {
		return nil, fmt.Errorf("history: event required")
	}
	wire := evt.Event()
	if wire == nil {
		return nil, fmt.Errorf("history: event %s has no payload", evt.EventType())
	}
	attrs, err := json.Marshal(wire.Attributes)
	if err != nil {
		return nil, fmt.Errorf("history: encode attributes: %w", err)
	}
	record := &Record{
		Fingerprint: Fingerprint(wire),
		Height:      wire.Height,
		Type:        wire.Type,
		Attributes:  string(attrs),
	}
	if committed, ok := evt.(events.Committed); ok {
		record.Seq = committed.Seq
	}
	if raw, ok := wire.Attributes["pool"]; ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			record.Pool = &id
		}
	}
	for _, key := range accountKeys {
		if v := wire.Attributes[key]; v != "" {
			record.Account = v
			break
		}
	}
	return record, nil
}

// Fingerprint hashes the event's type, height and sorted attributes with
// BLAKE3 and returns the hex digest.
func Fingerprint(evt *types.Event) string {
	if evt == nil {
		return ""
	}
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(evt.Type)
	b.WriteByte(0)
	b.WriteString(strconv.FormatUint(evt.Height, 10))
	for _, k := range keys {
		b.WriteByte(0)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(evt.Attributes[k])
	}
	sum := blake3.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum[:])
}

// Filter narrows a history query. Zero values are ignored.
type Filter struct {
	Type       string
	Account    string
	Pool       *uint64
	FromSeq    uint64
	FromHeight uint64
	ToHeight   uint64
	Limit      int
	Offset     int
}

// Query returns matching records ordered by sequence then height.
func (s *Store) Query(ctx context.Context, f Filter) ([]Record, error) {
	if s == nil {
		return nil, fmt.Errorf("history: store not initialised")
	}
	q := s.db.WithContext(ctx).Model(&Record{})
	if t := strings.TrimSpace(f.Type); t != "" {
		q = q.Where("type = ?", t)
	}
	if a := strings.TrimSpace(f.Account); a != "" {
		q = q.Where("account = ?", a)
	}
	if f.Pool != nil {
		q = q.Where("pool = ?", *f.Pool)
	}
	if f.FromSeq > 0 {
		q = q.Where("seq >= ?", f.FromSeq)
	}
	if f.FromHeight > 0 {
		q = q.Where("height >= ?", f.FromHeight)
	}
	if f.ToHeight > 0 {
		q = q.Where("height <= ?", f.ToHeight)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var out []Record
	err := q.Order("seq ASC").Order("height ASC").Order("created_at ASC").
		Limit(limit).Offset(f.Offset).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	return out, nil
}

// Decode returns the stored attributes of r.
func (r Record) Decode() (map[string]string, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
