// Package db is the persistence layer: a single-writer sqlite store holding
// every indexed artifact plus scan progress, with a write batcher for wallet
// upserts.
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// schemaSQL is compiled into the binary at build time.
//
//go:embed schema.sql
var schemaSQL string

// Store owns the sqlite database. sqlite supports one writer; the connection
// pool is pinned to a single connection and all multi-statement writes run
// inside explicit transactions.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path, applies the journaling
// configuration and initialises the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[Store] opened %s", path)
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("initialise schema: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("[Store] WAL checkpoint failed: %v", err)
	}
	return s.db.Close()
}

// DB exposes the handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

// ─── Deploys ───────────────────────────────────────────────────────────────

// InsertDeploy records a validated deploy. Re-inserting the same row is a
// no-op.
func (s *Store) InsertDeploy(ctx context.Context, d models.Deploy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO deploys
			(id, source_id, name, max_supply, price_btc, price_sats, deployer_address, block_height, timestamp, wallet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SourceID, d.Name, d.MaxSupply, d.PriceBTC, d.PriceSats,
		d.DeployerAddress, d.BlockHeight, d.Timestamp.Unix(), d.Wallet)
	return err
}

// GetDeployBySourceID returns the deploy whose token clones sourceID, or
// (nil, nil) when none exists.
func (s *Store) GetDeployBySourceID(ctx context.Context, sourceID string) (*models.Deploy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, name, max_supply, price_btc, price_sats, deployer_address, block_height, timestamp, wallet
		FROM deploys WHERE source_id = ?`, sourceID)
	return scanDeploy(row)
}

// GetDeploy returns a deploy by inscription id, or (nil, nil).
func (s *Store) GetDeploy(ctx context.Context, id string) (*models.Deploy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, name, max_supply, price_btc, price_sats, deployer_address, block_height, timestamp, wallet
		FROM deploys WHERE id = ?`, id)
	return scanDeploy(row)
}

func scanDeploy(row *sql.Row) (*models.Deploy, error) {
	var d models.Deploy
	var ts int64
	err := row.Scan(&d.ID, &d.SourceID, &d.Name, &d.MaxSupply, &d.PriceBTC, &d.PriceSats,
		&d.DeployerAddress, &d.BlockHeight, &ts, &d.Wallet)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Timestamp = time.Unix(ts, 0).UTC()
	return &d, nil
}

// ListDeploys returns a page of deploys, newest block first, plus the total
// count.
func (s *Store) ListDeploys(ctx context.Context, page, limit int) ([]models.Deploy, int, error) {
	page, limit = clampPage(page, limit)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deploys`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, name, max_supply, price_btc, price_sats, deployer_address, block_height, timestamp, wallet
		FROM deploys ORDER BY block_height DESC, id LIMIT ? OFFSET ?`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.Deploy, 0)
	for rows.Next() {
		var d models.Deploy
		var ts int64
		if err := rows.Scan(&d.ID, &d.SourceID, &d.Name, &d.MaxSupply, &d.PriceBTC, &d.PriceSats,
			&d.DeployerAddress, &d.BlockHeight, &ts, &d.Wallet); err != nil {
			return nil, 0, err
		}
		d.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// ─── Mints ─────────────────────────────────────────────────────────────────

func (s *Store) InsertMint(ctx context.Context, m models.Mint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO mints
			(id, deploy_id, source_id, mint_address, transaction_id, block_height, timestamp, wallet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.DeployID, m.SourceID, m.MintAddress, m.TransactionID,
		m.BlockHeight, m.Timestamp.Unix(), m.Wallet)
	return err
}

// CountMints returns how many mints exist against a deploy.
func (s *Store) CountMints(ctx context.Context, deployID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mints WHERE deploy_id = ?`, deployID).Scan(&n)
	return n, err
}

// HasMint reports whether a mint with this inscription id already exists.
func (s *Store) HasMint(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mints WHERE id = ?`, id).Scan(&n)
	return n > 0, err
}

// ListMintsByDeploy returns a page of mints for one deploy.
func (s *Store) ListMintsByDeploy(ctx context.Context, deployID string, page, limit int) ([]models.Mint, int, error) {
	page, limit = clampPage(page, limit)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mints WHERE deploy_id = ?`, deployID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deploy_id, source_id, mint_address, transaction_id, block_height, timestamp, wallet
		FROM mints WHERE deploy_id = ? ORDER BY block_height, id LIMIT ? OFFSET ?`,
		deployID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.Mint, 0)
	for rows.Next() {
		var m models.Mint
		var ts int64
		if err := rows.Scan(&m.ID, &m.DeployID, &m.SourceID, &m.MintAddress, &m.TransactionID,
			&m.BlockHeight, &ts, &m.Wallet); err != nil {
			return nil, 0, err
		}
		m.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// ─── Bitmaps ───────────────────────────────────────────────────────────────

func (s *Store) InsertBitmap(ctx context.Context, b models.Bitmap) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO bitmaps
			(inscription_id, bitmap_number, content, address, block_height, timestamp, sat, wallet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.InscriptionID, b.BitmapNumber, b.Content, b.Address,
		b.BlockHeight, b.Timestamp.Unix(), b.Sat, b.Wallet)
	return err
}

// ReplaceBitmap atomically displaces a bitmap claim with an earlier one for
// the same number.
func (s *Store) ReplaceBitmap(ctx context.Context, displacedID string, b models.Bitmap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bitmaps WHERE inscription_id = ?`, displacedID); err != nil {
		return fmt.Errorf("displace bitmap %s: %w", displacedID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM wallets WHERE inscription_id = ?`, displacedID); err != nil {
		return fmt.Errorf("displace wallet %s: %w", displacedID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bitmaps
			(inscription_id, bitmap_number, content, address, block_height, timestamp, sat, wallet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.InscriptionID, b.BitmapNumber, b.Content, b.Address,
		b.BlockHeight, b.Timestamp.Unix(), b.Sat, b.Wallet); err != nil {
		return fmt.Errorf("insert replacement bitmap: %w", err)
	}
	return tx.Commit()
}

// GetBitmapByNumber returns the bitmap claiming block number n, or (nil, nil).
func (s *Store) GetBitmapByNumber(ctx context.Context, n int64) (*models.Bitmap, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT inscription_id, bitmap_number, content, address, block_height, timestamp, sat, wallet
		FROM bitmaps WHERE bitmap_number = ?`, n)
	return scanBitmap(row)
}

func scanBitmap(row *sql.Row) (*models.Bitmap, error) {
	var b models.Bitmap
	var ts int64
	var sat sql.NullInt64
	err := row.Scan(&b.InscriptionID, &b.BitmapNumber, &b.Content, &b.Address,
		&b.BlockHeight, &ts, &sat, &b.Wallet)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.Timestamp = time.Unix(ts, 0).UTC()
	if sat.Valid {
		b.Sat = &sat.Int64
	}
	return &b, nil
}

// ListBitmaps returns a page of bitmaps ordered by bitmap number.
func (s *Store) ListBitmaps(ctx context.Context, page, limit int) ([]models.Bitmap, int, error) {
	page, limit = clampPage(page, limit)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bitmaps`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT inscription_id, bitmap_number, content, address, block_height, timestamp, sat, wallet
		FROM bitmaps ORDER BY bitmap_number LIMIT ? OFFSET ?`,
		limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.Bitmap, 0)
	for rows.Next() {
		var b models.Bitmap
		var ts int64
		var sat sql.NullInt64
		if err := rows.Scan(&b.InscriptionID, &b.BitmapNumber, &b.Content, &b.Address,
			&b.BlockHeight, &ts, &sat, &b.Wallet); err != nil {
			return nil, 0, err
		}
		b.Timestamp = time.Unix(ts, 0).UTC()
		if sat.Valid {
			b.Sat = &sat.Int64
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

// ─── Parcels ───────────────────────────────────────────────────────────────

// GetParcelBySlot returns the parcel occupying (parcelNumber, bitmapNumber),
// or (nil, nil).
func (s *Store) GetParcelBySlot(ctx context.Context, parcelNumber, bitmapNumber int64) (*models.Parcel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT inscription_id, parcel_number, bitmap_number, bitmap_inscription_id, content, address,
		       block_height, timestamp, transaction_count, wallet
		FROM parcels WHERE parcel_number = ? AND bitmap_number = ?`, parcelNumber, bitmapNumber)
	return scanParcel(row)
}

func scanParcel(row *sql.Row) (*models.Parcel, error) {
	var p models.Parcel
	var ts int64
	var txCount sql.NullInt64
	err := row.Scan(&p.InscriptionID, &p.ParcelNumber, &p.BitmapNumber, &p.BitmapInscriptionID,
		&p.Content, &p.Address, &p.BlockHeight, &ts, &txCount, &p.Wallet)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Timestamp = time.Unix(ts, 0).UTC()
	if txCount.Valid {
		p.TransactionCount = &txCount.Int64
	}
	return &p, nil
}

// InsertParcel records a parcel whose slot is free.
func (s *Store) InsertParcel(ctx context.Context, p models.Parcel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO parcels
			(inscription_id, parcel_number, bitmap_number, bitmap_inscription_id, content, address,
			 block_height, timestamp, transaction_count, wallet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.InscriptionID, p.ParcelNumber, p.BitmapNumber, p.BitmapInscriptionID, p.Content,
		p.Address, p.BlockHeight, p.Timestamp.Unix(), p.TransactionCount, p.Wallet)
	return err
}

// ReplaceParcel atomically displaces the current holder of a slot with an
// earlier claimant. The select-then-replace is a single transaction so two
// competing claimants can never both land.
func (s *Store) ReplaceParcel(ctx context.Context, displacedID string, p models.Parcel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM parcels WHERE inscription_id = ?`, displacedID); err != nil {
		return fmt.Errorf("displace parcel %s: %w", displacedID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM wallets WHERE inscription_id = ?`, displacedID); err != nil {
		return fmt.Errorf("displace wallet %s: %w", displacedID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO parcels
			(inscription_id, parcel_number, bitmap_number, bitmap_inscription_id, content, address,
			 block_height, timestamp, transaction_count, wallet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.InscriptionID, p.ParcelNumber, p.BitmapNumber, p.BitmapInscriptionID, p.Content,
		p.Address, p.BlockHeight, p.Timestamp.Unix(), p.TransactionCount, p.Wallet); err != nil {
		return fmt.Errorf("insert replacement parcel: %w", err)
	}
	return tx.Commit()
}

// ListParcelsByBitmap returns all parcels of one bitmap, ordered by slot.
func (s *Store) ListParcelsByBitmap(ctx context.Context, bitmapNumber int64) ([]models.Parcel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT inscription_id, parcel_number, bitmap_number, bitmap_inscription_id, content, address,
		       block_height, timestamp, transaction_count, wallet
		FROM parcels WHERE bitmap_number = ? ORDER BY parcel_number`, bitmapNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Parcel, 0)
	for rows.Next() {
		var p models.Parcel
		var ts int64
		var txCount sql.NullInt64
		if err := rows.Scan(&p.InscriptionID, &p.ParcelNumber, &p.BitmapNumber, &p.BitmapInscriptionID,
			&p.Content, &p.Address, &p.BlockHeight, &ts, &txCount, &p.Wallet); err != nil {
			return nil, err
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		if txCount.Valid {
			p.TransactionCount = &txCount.Int64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─── Wallets & transfers ───────────────────────────────────────────────────

// UpsertWallet writes one wallet row immediately. Bulk callers go through
// the WalletBatcher instead.
func (s *Store) UpsertWallet(ctx context.Context, w models.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (inscription_id, address, kind, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (inscription_id) DO UPDATE SET
			address = excluded.address,
			updated_at = excluded.updated_at`,
		w.InscriptionID, w.Address, w.Kind, w.UpdatedAt.Unix())
	return err
}

// TrackedInscriptions returns every wallet row; the transfer tracker
// reconciles each against the upstream holder.
func (s *Store) TrackedInscriptions(ctx context.Context) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT inscription_id, address, kind, updated_at FROM wallets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Wallet, 0)
	for rows.Next() {
		var w models.Wallet
		var ts int64
		if err := rows.Scan(&w.InscriptionID, &w.Address, &w.Kind, &ts); err != nil {
			return nil, err
		}
		w.UpdatedAt = time.Unix(ts, 0).UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}

// entityWalletSQL maps a wallet kind to the update statement for its entity
// table.
var entityWalletSQL = map[string]string{
	"deploy": `UPDATE deploys SET wallet = ? WHERE id = ?`,
	"mint":   `UPDATE mints SET wallet = ? WHERE id = ?`,
	"bitmap": `UPDATE bitmaps SET wallet = ? WHERE inscription_id = ?`,
	"parcel": `UPDATE parcels SET wallet = ? WHERE inscription_id = ?`,
}

// RecordTransfer applies one detected ownership change atomically: entity
// wallet column, wallets row, and the append-only history entry.
func (s *Store) RecordTransfer(ctx context.Context, kind, inscriptionID, oldAddr, newAddr string, blockHeight int64) error {
	stmt, ok := entityWalletSQL[kind]
	if !ok {
		return fmt.Errorf("unknown wallet kind %q", kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, stmt, newAddr, inscriptionID); err != nil {
		return fmt.Errorf("update %s wallet: %w", kind, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE wallets SET address = ?, updated_at = ? WHERE inscription_id = ?`,
		newAddr, now, inscriptionID); err != nil {
		return fmt.Errorf("update wallets row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO address_history (inscription_id, old_address, new_address, block_height, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		inscriptionID, oldAddr, newAddr, blockHeight, now); err != nil {
		return fmt.Errorf("append address history: %w", err)
	}
	return tx.Commit()
}

// AddressHistory returns all ownership changes of one inscription, oldest
// first.
func (s *Store) AddressHistory(ctx context.Context, inscriptionID string) ([]models.AddressHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT inscription_id, old_address, new_address, block_height, timestamp
		FROM address_history WHERE inscription_id = ? ORDER BY id`, inscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.AddressHistory, 0)
	for rows.Next() {
		var h models.AddressHistory
		var ts int64
		if err := rows.Scan(&h.InscriptionID, &h.OldAddress, &h.NewAddress, &h.BlockHeight, &ts); err != nil {
			return nil, err
		}
		h.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

// ─── Blocks, error blocks, failures, stats ─────────────────────────────────

func (s *Store) IsBlockProcessed(ctx context.Context, height int64) (bool, error) {
	var processed int
	err := s.db.QueryRowContext(ctx,
		`SELECT processed FROM blocks WHERE block_height = ?`, height).Scan(&processed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return processed != 0, err
}

func (s *Store) MarkBlockProcessed(ctx context.Context, height int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocks (block_height, processed, processed_at)
		VALUES (?, 1, ?)
		ON CONFLICT (block_height) DO UPDATE SET processed = 1, processed_at = excluded.processed_at`,
		height, time.Now().Unix())
	return err
}

// HighestProcessedBlock returns the greatest processed height; ok is false
// when no block has been processed yet.
func (s *Store) HighestProcessedBlock(ctx context.Context) (height int64, ok bool, err error) {
	var h sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT MAX(block_height) FROM blocks WHERE processed = 1`).Scan(&h)
	if err != nil {
		return 0, false, err
	}
	return h.Int64, h.Valid, nil
}

// UpsertErrorBlock records a block failure and schedules its retry.
func (s *Store) UpsertErrorBlock(ctx context.Context, height int64, message string, retryAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_blocks (block_height, error_message, retry_count, retry_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (block_height) DO UPDATE SET
			error_message = excluded.error_message,
			retry_count = retry_count + 1,
			retry_at = excluded.retry_at,
			updated_at = excluded.updated_at`,
		height, message, retryAt, time.Now().Unix())
	return err
}

func (s *Store) DeleteErrorBlock(ctx context.Context, height int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM error_blocks WHERE block_height = ?`, height)
	return err
}

// DueErrorBlocks returns error blocks whose retry_at has been reached.
func (s *Store) DueErrorBlocks(ctx context.Context, currentHeight int64) ([]models.ErrorBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_height, error_message, retry_count, retry_at, updated_at
		FROM error_blocks WHERE retry_at <= ? ORDER BY block_height`, currentHeight)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.ErrorBlock, 0)
	for rows.Next() {
		var e models.ErrorBlock
		var ts int64
		if err := rows.Scan(&e.BlockHeight, &e.ErrorMessage, &e.RetryCount, &e.RetryAt, &ts); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) InsertFailedInscription(ctx context.Context, f models.FailedInscription) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO failed_inscriptions (id, inscription_id, block_height, error_message, failed_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.InscriptionID, f.BlockHeight, f.ErrorMessage, f.FailedAt.Unix())
	return err
}

func (s *Store) SaveBlockStats(ctx context.Context, st models.BlockStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_stats
			(block_height, total_transactions, total_inscriptions, brc420_deploys, brc420_mints, bitmaps, parcels, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (block_height) DO UPDATE SET
			total_transactions = excluded.total_transactions,
			total_inscriptions = excluded.total_inscriptions,
			brc420_deploys = excluded.brc420_deploys,
			brc420_mints = excluded.brc420_mints,
			bitmaps = excluded.bitmaps,
			parcels = excluded.parcels,
			processed_at = excluded.processed_at`,
		st.BlockHeight, st.TotalTransactions, st.TotalInscriptions,
		st.Brc420Deploys, st.Brc420Mints, st.Bitmaps, st.Parcels, st.ProcessedAt.Unix())
	return err
}

// GetBlockStats returns the stats row for a block, or (nil, nil).
func (s *Store) GetBlockStats(ctx context.Context, height int64) (*models.BlockStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT block_height, total_transactions, total_inscriptions, brc420_deploys, brc420_mints, bitmaps, parcels, processed_at
		FROM block_stats WHERE block_height = ?`, height)
	var st models.BlockStats
	var ts int64
	err := row.Scan(&st.BlockHeight, &st.TotalTransactions, &st.TotalInscriptions,
		&st.Brc420Deploys, &st.Brc420Mints, &st.Bitmaps, &st.Parcels, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.ProcessedAt = time.Unix(ts, 0).UTC()
	return &st, nil
}

// ─── Patterns ──────────────────────────────────────────────────────────────

func (s *Store) UpsertPattern(ctx context.Context, bitmapNumber int64, pattern string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bitmap_patterns (bitmap_number, pattern, generated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (bitmap_number) DO UPDATE SET
			pattern = excluded.pattern,
			generated_at = excluded.generated_at`,
		bitmapNumber, pattern, time.Now().Unix())
	return err
}

// GetPattern returns the pattern string for a bitmap, or "" when absent.
func (s *Store) GetPattern(ctx context.Context, bitmapNumber int64) (string, error) {
	var p string
	err := s.db.QueryRowContext(ctx,
		`SELECT pattern FROM bitmap_patterns WHERE bitmap_number = ?`, bitmapNumber).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return p, err
}

func clampPage(page, limit int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	return page, limit
}
