package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"DipSentinel/internal/model"
)

// SQLiteStore persists state to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}

	log.WithField("path", dbPath).Info("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rules (
			account_id         INTEGER NOT NULL,
			instrument         TEXT NOT NULL,
			buy_drop_pct       REAL,
			entry_price        REAL,
			take_profit_pct    REAL,
			stop_loss_pct      REAL,
			dca_tiers          TEXT NOT NULL DEFAULT '[]',
			last_buy_at        INTEGER,
			last_tp_at         INTEGER,
			last_sl_at         INTEGER,
			last_dca_at        INTEGER,
			last_buy_drop_sent REAL,
			created_at         INTEGER NOT NULL,
			updated_at         INTEGER NOT NULL,
			PRIMARY KEY (account_id, instrument)
		)`,

		`CREATE TABLE IF NOT EXISTS budgets (
			account_id  INTEGER PRIMARY KEY,
			week_start  INTEGER NOT NULL,
			plan_spent  TEXT NOT NULL DEFAULT '0',
			dip_spent   TEXT NOT NULL DEFAULT '0',
			plan_budget TEXT NOT NULL DEFAULT '0',
			dip_budget  TEXT NOT NULL DEFAULT '0',
			updated_at  INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS plans (
			account_id INTEGER NOT NULL,
			position   INTEGER NOT NULL,
			instrument TEXT NOT NULL,
			amount     TEXT NOT NULL,
			PRIMARY KEY (account_id, position)
		)`,

		`CREATE TABLE IF NOT EXISTS alert_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			intent_id  TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			account_id INTEGER NOT NULL,
			instrument TEXT NOT NULL,
			class      TEXT NOT NULL,
			price      REAL,
			drop_pct   REAL,
			amount     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_ts ON alert_history(timestamp)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "exec %q", stmt[:40])
		}
	}
	return nil
}

const sqliteRuleColumns = `account_id, instrument, buy_drop_pct, entry_price, take_profit_pct, stop_loss_pct,
	dca_tiers, last_buy_at, last_tp_at, last_sl_at, last_dca_at, last_buy_drop_sent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRule(row rowScanner) (model.RuleRecord, error) {
	var (
		rec                             model.RuleRecord
		account                         int64
		buy, entry, tp, sl, lastDrop    sql.NullFloat64
		tiers                           string
		lastBuy, lastTP, lastSL, lastDC sql.NullInt64
		created, updated                int64
	)
	if err := row.Scan(&account, &rec.Instrument, &buy, &entry, &tp, &sl,
		&tiers, &lastBuy, &lastTP, &lastSL, &lastDC, &lastDrop, &created, &updated); err != nil {
		return model.RuleRecord{}, err
	}
	rec.AccountID = model.AccountID(account)
	rec.BuyDropPct = floatPtr(buy)
	rec.EntryPrice = floatPtr(entry)
	rec.TakeProfitPct = floatPtr(tp)
	rec.StopLossPct = floatPtr(sl)
	rec.LastBuyDropSent = floatPtr(lastDrop)
	decoded, err := decodeTiers([]byte(tiers))
	if err != nil {
		return model.RuleRecord{}, err
	}
	rec.DCATiers = decoded
	setFired(&rec, model.ClassBuy, unixTime(lastBuy))
	setFired(&rec, model.ClassTakeProfit, unixTime(lastTP))
	setFired(&rec, model.ClassStopLoss, unixTime(lastSL))
	setFired(&rec, model.ClassDCA, unixTime(lastDC))
	rec.CreatedAt = time.Unix(created, 0).UTC()
	rec.UpdatedAt = time.Unix(updated, 0).UTC()
	rec.Normalize()
	return rec, nil
}

func (s *SQLiteStore) queryRules(ctx context.Context, query string, args ...any) ([]model.RuleRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query rules")
	}
	defer rows.Close()

	var out []model.RuleRecord
	for rows.Next() {
		rec, err := scanSQLiteRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan rule")
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate rules")
}

func (s *SQLiteStore) LoadRules(ctx context.Context) ([]model.RuleRecord, error) {
	return s.queryRules(ctx, `SELECT `+sqliteRuleColumns+` FROM rules ORDER BY account_id, instrument`)
}

func (s *SQLiteStore) ListRules(ctx context.Context, account model.AccountID) ([]model.RuleRecord, error) {
	return s.queryRules(ctx, `SELECT `+sqliteRuleColumns+` FROM rules WHERE account_id = ? ORDER BY instrument`, int64(account))
}

func (s *SQLiteStore) GetRule(ctx context.Context, key model.RuleKey) (model.RuleRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRuleColumns+` FROM rules WHERE account_id = ? AND instrument = ?`,
		int64(key.AccountID), key.Instrument)
	rec, err := scanSQLiteRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RuleRecord{}, errors.Wrapf(ErrNotFound, "rule %s", key)
	}
	if err != nil {
		return model.RuleRecord{}, errors.Wrapf(err, "get rule %s", key)
	}
	return rec, nil
}

func (s *SQLiteStore) SaveRule(ctx context.Context, rec model.RuleRecord) error {
	tiers, err := encodeTiers(rec.DCATiers)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `INSERT INTO rules (`+sqliteRuleColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(account_id, instrument) DO UPDATE SET
			buy_drop_pct = excluded.buy_drop_pct,
			entry_price = excluded.entry_price,
			take_profit_pct = excluded.take_profit_pct,
			stop_loss_pct = excluded.stop_loss_pct,
			dca_tiers = excluded.dca_tiers,
			last_buy_at = excluded.last_buy_at,
			last_tp_at = excluded.last_tp_at,
			last_sl_at = excluded.last_sl_at,
			last_dca_at = excluded.last_dca_at,
			last_buy_drop_sent = excluded.last_buy_drop_sent,
			updated_at = excluded.updated_at`,
		int64(rec.AccountID), rec.Instrument,
		nullFloat(rec.BuyDropPct), nullFloat(rec.EntryPrice), nullFloat(rec.TakeProfitPct), nullFloat(rec.StopLossPct),
		tiers,
		nullUnix(rec.LastFired[model.ClassBuy]), nullUnix(rec.LastFired[model.ClassTakeProfit]),
		nullUnix(rec.LastFired[model.ClassStopLoss]), nullUnix(rec.LastFired[model.ClassDCA]),
		nullFloat(rec.LastBuyDropSent),
		rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
	)
	return errors.Wrapf(err, "save rule %s", rec.Key())
}

func (s *SQLiteStore) DeleteRule(ctx context.Context, key model.RuleKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE account_id = ? AND instrument = ?`,
		int64(key.AccountID), key.Instrument)
	if err != nil {
		return errors.Wrapf(err, "delete rule %s", key)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrNotFound, "rule %s", key)
	}
	return nil
}

const sqliteBudgetColumns = `account_id, week_start, plan_spent, dip_spent, plan_budget, dip_budget, updated_at`

func scanSQLiteBudget(row rowScanner) (model.BudgetState, error) {
	var (
		st                             model.BudgetState
		account, weekStart, updated    int64
		planSpent, dipSpent, plan, dip string
	)
	if err := row.Scan(&account, &weekStart, &planSpent, &dipSpent, &plan, &dip, &updated); err != nil {
		return model.BudgetState{}, err
	}
	st.AccountID = model.AccountID(account)
	st.WeekStart = time.Unix(weekStart, 0).UTC()
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	var err error
	if st.PlanSpent, err = decodeMoney(planSpent); err != nil {
		return model.BudgetState{}, err
	}
	if st.DipSpent, err = decodeMoney(dipSpent); err != nil {
		return model.BudgetState{}, err
	}
	if st.PlanBudget, err = decodeMoney(plan); err != nil {
		return model.BudgetState{}, err
	}
	if st.DipBudget, err = decodeMoney(dip); err != nil {
		return model.BudgetState{}, err
	}
	return st, nil
}

func (s *SQLiteStore) GetBudget(ctx context.Context, account model.AccountID) (model.BudgetState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteBudgetColumns+` FROM budgets WHERE account_id = ?`, int64(account))
	st, err := scanSQLiteBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BudgetState{}, errors.Wrapf(ErrNotFound, "budget %d", account)
	}
	if err != nil {
		return model.BudgetState{}, errors.Wrapf(err, "get budget %d", account)
	}
	return st, nil
}

func (s *SQLiteStore) SaveBudget(ctx context.Context, st model.BudgetState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO budgets (`+sqliteBudgetColumns+`)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(account_id) DO UPDATE SET
			week_start = excluded.week_start,
			plan_spent = excluded.plan_spent,
			dip_spent = excluded.dip_spent,
			plan_budget = excluded.plan_budget,
			dip_budget = excluded.dip_budget,
			updated_at = excluded.updated_at`,
		int64(st.AccountID), st.WeekStart.Unix(),
		st.PlanSpent.String(), st.DipSpent.String(), st.PlanBudget.String(), st.DipBudget.String(),
		st.UpdatedAt.Unix(),
	)
	return errors.Wrapf(err, "save budget %d", st.AccountID)
}

func (s *SQLiteStore) LoadBudgets(ctx context.Context) ([]model.BudgetState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteBudgetColumns+` FROM budgets ORDER BY account_id`)
	if err != nil {
		return nil, errors.Wrap(err, "query budgets")
	}
	defer rows.Close()

	var out []model.BudgetState
	for rows.Next() {
		st, err := scanSQLiteBudget(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan budget")
		}
		out = append(out, st)
	}
	return out, errors.Wrap(rows.Err(), "iterate budgets")
}

func (s *SQLiteStore) GetPlan(ctx context.Context, account model.AccountID) ([]model.PlanEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT instrument, amount FROM plans WHERE account_id = ? ORDER BY position`, int64(account))
	if err != nil {
		return nil, errors.Wrap(err, "query plan")
	}
	defer rows.Close()

	var out []model.PlanEntry
	for rows.Next() {
		var e model.PlanEntry
		var amount string
		if err := rows.Scan(&e.Instrument, &amount); err != nil {
			return nil, errors.Wrap(err, "scan plan entry")
		}
		if e.Amount, err = decodeMoney(amount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate plan")
}

func (s *SQLiteStore) ReplacePlan(ctx context.Context, account model.AccountID, entries []model.PlanEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin plan tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM plans WHERE account_id = ?`, int64(account)); err != nil {
		return errors.Wrap(err, "clear plan")
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO plans (account_id, position, instrument, amount) VALUES (?,?,?,?)`,
			int64(account), i, e.Instrument, e.Amount.String()); err != nil {
			return errors.Wrapf(err, "insert plan entry %s", e.Instrument)
		}
	}
	return errors.Wrap(tx.Commit(), "commit plan")
}

func (s *SQLiteStore) PlanAccounts(ctx context.Context) ([]model.AccountID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT account_id FROM plans ORDER BY account_id`)
	if err != nil {
		return nil, errors.Wrap(err, "query plan accounts")
	}
	defer rows.Close()

	var out []model.AccountID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan plan account")
		}
		out = append(out, model.AccountID(id))
	}
	return out, errors.Wrap(rows.Err(), "iterate plan accounts")
}

func (s *SQLiteStore) RecordIntent(ctx context.Context, intent model.NotificationIntent) error {
	h := historyFromIntent(intent)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO alert_history
		(intent_id, timestamp, account_id, instrument, class, price, drop_pct, amount)
		VALUES (?,?,?,?,?,?,?,?)`,
		h.IntentID, h.CreatedAt, int64(h.AccountID), h.Instrument, string(h.Class), h.Price, h.DropPct, h.Amount,
	)
	return errors.Wrap(err, "record intent")
}

func (s *SQLiteStore) Close() error {
	log.Info("closing sqlite store")
	return s.db.Close()
}
