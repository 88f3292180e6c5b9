package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"github.com/wormhole-demo/corebridge/internal/guardianset"
	"github.com/wormhole-demo/corebridge/internal/replay"
	"github.com/wormhole-demo/corebridge/internal/vaa"
)

const (
	metaCurrentGuardianSet = "current_guardian_set"
	metaMessageFee         = "message_fee"
	metaFeeBalance         = "fee_balance"
)

// SQLiteStore keeps state in a SQLite database. Update runs in a
// BEGIN IMMEDIATE transaction, so concurrent writers serialise on the
// database lock instead of failing at commit.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path. ":memory:"
// opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and makes the
	// database lock the only writer arbitration.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS guardian_sets (
			set_index INTEGER PRIMARY KEY,
			keys BLOB NOT NULL,
			expiration_ns INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS claims (
			emitter_chain INTEGER NOT NULL,
			emitter_address BLOB NOT NULL,
			sequence BLOB NOT NULL,
			claimed_at INTEGER NOT NULL,
			PRIMARY KEY (emitter_chain, emitter_address, sequence)
		);`,
		`CREATE TABLE IF NOT EXISTS sequences (
			emitter BLOB PRIMARY KEY,
			next BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS upgrades (
			module TEXT PRIMARY KEY,
			target BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS registrations (
			chain INTEGER NOT NULL,
			emitter BLOB NOT NULL,
			registered_at INTEGER NOT NULL,
			PRIMARY KEY (chain, emitter)
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *SQLiteStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *SQLiteStore) run(ctx context.Context, readOnly bool, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&sqliteTx{ctx: ctx, tx: sqlTx, readOnly: readOnly}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if readOnly {
		return sqlTx.Rollback()
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTx) exec(query string, args ...any) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(t.ctx, query, args...)
	return err
}

// row scans a single row into dest and reports whether it existed.
func (t *sqliteTx) row(query string, args []any, dest ...any) (bool, error) {
	err := t.tx.QueryRowContext(t.ctx, query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func u64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func (t *sqliteTx) GuardianSet(index uint32) (*guardianset.GuardianSet, error) {
	var keys []byte
	var expiration int64
	ok, err := t.row(`SELECT keys, expiration_ns FROM guardian_sets WHERE set_index = ?`, []any{index}, &keys, &expiration)
	if err != nil || !ok {
		return nil, err
	}
	if len(keys)%common.AddressLength != 0 {
		return nil, fmt.Errorf("guardian set %d: corrupt key blob of %d bytes", index, len(keys))
	}

	gs := &guardianset.GuardianSet{Index: index, Keys: make([]common.Address, len(keys)/common.AddressLength)}
	for i := range gs.Keys {
		copy(gs.Keys[i][:], keys[i*common.AddressLength:])
	}
	if expiration != 0 {
		gs.ExpirationTime = time.Unix(0, expiration)
	}
	return gs, nil
}

func (t *sqliteTx) PutGuardianSet(gs *guardianset.GuardianSet) error {
	keys := make([]byte, 0, len(gs.Keys)*common.AddressLength)
	for _, k := range gs.Keys {
		keys = append(keys, k[:]...)
	}
	var expiration int64
	if !gs.ExpirationTime.IsZero() {
		expiration = gs.ExpirationTime.UnixNano()
	}
	return t.exec(`INSERT INTO guardian_sets (set_index, keys, expiration_ns) VALUES (?, ?, ?)
		ON CONFLICT(set_index) DO UPDATE SET keys=excluded.keys, expiration_ns=excluded.expiration_ns;`,
		gs.Index, keys, expiration)
}

func (t *sqliteTx) meta(key string) ([]byte, bool, error) {
	var value []byte
	ok, err := t.row(`SELECT value FROM meta WHERE key = ?`, []any{key}, &value)
	return value, ok, err
}

func (t *sqliteTx) setMeta(key string, value []byte) error {
	return t.exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, key, value)
}

func (t *sqliteTx) CurrentGuardianSetIndex() (uint32, bool, error) {
	value, ok, err := t.meta(metaCurrentGuardianSet)
	if err != nil || !ok {
		return 0, false, err
	}
	if len(value) != 4 {
		return 0, false, fmt.Errorf("corrupt current guardian set index of %d bytes", len(value))
	}
	return binary.BigEndian.Uint32(value), true, nil
}

func (t *sqliteTx) SetCurrentGuardianSetIndex(index uint32) error {
	return t.setMeta(metaCurrentGuardianSet, binary.BigEndian.AppendUint32(nil, index))
}

func (t *sqliteTx) Claimed(key replay.Key) (bool, error) {
	var one int
	return t.row(`SELECT 1 FROM claims WHERE emitter_chain = ? AND emitter_address = ? AND sequence = ?`,
		[]any{uint16(key.EmitterChain), key.EmitterAddress[:], u64(key.Sequence)}, &one)
}

func (t *sqliteTx) MarkClaimed(key replay.Key, at time.Time) error {
	return t.exec(`INSERT INTO claims (emitter_chain, emitter_address, sequence, claimed_at) VALUES (?, ?, ?, ?)`,
		uint16(key.EmitterChain), key.EmitterAddress[:], u64(key.Sequence), at.Unix())
}

func (t *sqliteTx) NextSequence(emitter vaa.Address) (uint64, error) {
	var next []byte
	ok, err := t.row(`SELECT next FROM sequences WHERE emitter = ?`, []any{emitter[:]}, &next)
	if err != nil || !ok {
		return 0, err
	}
	if len(next) != 8 {
		return 0, fmt.Errorf("corrupt sequence of %s", emitter)
	}
	return binary.BigEndian.Uint64(next), nil
}

func (t *sqliteTx) SetNextSequence(emitter vaa.Address, next uint64) error {
	return t.exec(`INSERT INTO sequences (emitter, next) VALUES (?, ?)
		ON CONFLICT(emitter) DO UPDATE SET next=excluded.next;`, emitter[:], u64(next))
}

func (t *sqliteTx) amount(key string) (*uint256.Int, error) {
	value, ok, err := t.meta(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	if len(value) != 32 {
		return nil, fmt.Errorf("corrupt %s of %d bytes", key, len(value))
	}
	return new(uint256.Int).SetBytes32(value), nil
}

func (t *sqliteTx) setAmount(key string, v *uint256.Int) error {
	b := v.Bytes32()
	return t.setMeta(key, b[:])
}

func (t *sqliteTx) MessageFee() (*uint256.Int, error) { return t.amount(metaMessageFee) }

func (t *sqliteTx) SetMessageFee(fee *uint256.Int) error { return t.setAmount(metaMessageFee, fee) }

func (t *sqliteTx) FeeBalance() (*uint256.Int, error) { return t.amount(metaFeeBalance) }

func (t *sqliteTx) SetFeeBalance(balance *uint256.Int) error {
	return t.setAmount(metaFeeBalance, balance)
}

func (t *sqliteTx) UpgradeTarget(module string) (vaa.Address, bool, error) {
	var target vaa.Address
	var raw []byte
	ok, err := t.row(`SELECT target FROM upgrades WHERE module = ?`, []any{module}, &raw)
	if err != nil || !ok {
		return target, false, err
	}
	copy(target[:], raw)
	return target, true, nil
}

func (t *sqliteTx) SetUpgradeTarget(module string, target vaa.Address) error {
	return t.exec(`INSERT INTO upgrades (module, target) VALUES (?, ?)
		ON CONFLICT(module) DO UPDATE SET target=excluded.target;`, module, target[:])
}

func (t *sqliteTx) Registered(chain vaa.ChainID, emitter vaa.Address) (bool, error) {
	var one int
	return t.row(`SELECT 1 FROM registrations WHERE chain = ? AND emitter = ?`, []any{uint16(chain), emitter[:]}, &one)
}

func (t *sqliteTx) PutRegistration(r Registration) error {
	return t.exec(`INSERT INTO registrations (chain, emitter, registered_at) VALUES (?, ?, ?)`,
		uint16(r.Chain), r.Emitter[:], r.RegisteredAt.Unix())
}

func (t *sqliteTx) Registrations() ([]Registration, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT chain, emitter, registered_at FROM registrations ORDER BY chain, emitter`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Registration
	for rows.Next() {
		var (
			chain   uint16
			emitter []byte
			at      int64
		)
		if err := rows.Scan(&chain, &emitter, &at); err != nil {
			return nil, err
		}
		r := Registration{Chain: vaa.ChainID(chain), RegisteredAt: time.Unix(at, 0)}
		copy(r.Emitter[:], emitter)
		out = append(out, r)
	}
	return out, rows.Err()
}
