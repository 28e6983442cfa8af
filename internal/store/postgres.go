package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/model"
)

// PostgresStore persists state in PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore applies migrations and connects a pool to dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if err := ApplyMigrations(ctx, dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	log.Info("postgres store connected")
	return &PostgresStore{pool: pool}, nil
}

const (
	pgRuleColumns = `
    account_id, instrument, buy_drop_pct, entry_price, take_profit_pct, stop_loss_pct,
    dca_tiers, last_buy_at, last_tp_at, last_sl_at, last_dca_at, last_buy_drop_sent,
    created_at, updated_at`

	pgRuleSelectSQL = `SELECT` + pgRuleColumns + ` FROM rules`

	pgRuleUpsertSQL = `
INSERT INTO rules (` + pgRuleColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (account_id, instrument) DO UPDATE SET
    buy_drop_pct = EXCLUDED.buy_drop_pct,
    entry_price = EXCLUDED.entry_price,
    take_profit_pct = EXCLUDED.take_profit_pct,
    stop_loss_pct = EXCLUDED.stop_loss_pct,
    dca_tiers = EXCLUDED.dca_tiers,
    last_buy_at = EXCLUDED.last_buy_at,
    last_tp_at = EXCLUDED.last_tp_at,
    last_sl_at = EXCLUDED.last_sl_at,
    last_dca_at = EXCLUDED.last_dca_at,
    last_buy_drop_sent = EXCLUDED.last_buy_drop_sent,
    updated_at = EXCLUDED.updated_at;
`
	pgRuleDeleteSQL = `DELETE FROM rules WHERE account_id = $1 AND instrument = $2;`

	pgBudgetSelectSQL = `
SELECT account_id, week_start, plan_spent::text, dip_spent::text, plan_budget::text, dip_budget::text, updated_at
FROM budgets`

	pgBudgetUpsertSQL = `
INSERT INTO budgets (account_id, week_start, plan_spent, dip_spent, plan_budget, dip_budget, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7)
ON CONFLICT (account_id) DO UPDATE SET
    week_start = EXCLUDED.week_start,
    plan_spent = EXCLUDED.plan_spent,
    dip_spent = EXCLUDED.dip_spent,
    plan_budget = EXCLUDED.plan_budget,
    dip_budget = EXCLUDED.dip_budget,
    updated_at = EXCLUDED.updated_at;
`
	pgPlanSelectSQL   = `SELECT instrument, amount::text FROM plans WHERE account_id = $1 ORDER BY position;`
	pgPlanDeleteSQL   = `DELETE FROM plans WHERE account_id = $1;`
	pgPlanInsertSQL   = `INSERT INTO plans (account_id, position, instrument, amount) VALUES ($1, $2, $3, $4::numeric);`
	pgPlanAccountsSQL = `SELECT DISTINCT account_id FROM plans ORDER BY account_id;`

	pgHistoryInsertSQL = `
INSERT INTO alert_history (intent_id, created_at, account_id, instrument, class, price, drop_pct, amount)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::numeric);
`
)

func scanPostgresRule(row pgx.Row) (model.RuleRecord, error) {
	var (
		rec                             model.RuleRecord
		account                         int64
		tiers                           []byte
		lastBuy, lastTP, lastSL, lastDC *time.Time
	)
	if err := row.Scan(&account, &rec.Instrument, &rec.BuyDropPct, &rec.EntryPrice, &rec.TakeProfitPct, &rec.StopLossPct,
		&tiers, &lastBuy, &lastTP, &lastSL, &lastDC, &rec.LastBuyDropSent, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return model.RuleRecord{}, err
	}
	rec.AccountID = model.AccountID(account)
	decoded, err := decodeTiers(tiers)
	if err != nil {
		return model.RuleRecord{}, err
	}
	rec.DCATiers = decoded
	for class, at := range map[model.AlertClass]*time.Time{
		model.ClassBuy: lastBuy, model.ClassTakeProfit: lastTP, model.ClassStopLoss: lastSL, model.ClassDCA: lastDC,
	} {
		if at != nil {
			setFired(&rec, class, at.UTC())
		}
	}
	rec.Normalize()
	return rec, nil
}

func (s *PostgresStore) queryRules(ctx context.Context, query string, args ...any) ([]model.RuleRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query rules")
	}
	defer rows.Close()

	var out []model.RuleRecord
	for rows.Next() {
		rec, err := scanPostgresRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan rule")
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate rules")
}

func (s *PostgresStore) LoadRules(ctx context.Context) ([]model.RuleRecord, error) {
	return s.queryRules(ctx, pgRuleSelectSQL+` ORDER BY account_id, instrument;`)
}

func (s *PostgresStore) ListRules(ctx context.Context, account model.AccountID) ([]model.RuleRecord, error) {
	return s.queryRules(ctx, pgRuleSelectSQL+` WHERE account_id = $1 ORDER BY instrument;`, int64(account))
}

func (s *PostgresStore) GetRule(ctx context.Context, key model.RuleKey) (model.RuleRecord, error) {
	row := s.pool.QueryRow(ctx, pgRuleSelectSQL+` WHERE account_id = $1 AND instrument = $2;`, int64(key.AccountID), key.Instrument)
	rec, err := scanPostgresRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RuleRecord{}, errors.Wrapf(ErrNotFound, "rule %s", key)
	}
	if err != nil {
		return model.RuleRecord{}, errors.Wrapf(err, "get rule %s", key)
	}
	return rec, nil
}

func (s *PostgresStore) SaveRule(ctx context.Context, rec model.RuleRecord) error {
	tiers, err := encodeTiers(rec.DCATiers)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgRuleUpsertSQL,
		int64(rec.AccountID), rec.Instrument,
		rec.BuyDropPct, rec.EntryPrice, rec.TakeProfitPct, rec.StopLossPct,
		tiers,
		timePtr(rec.LastFired[model.ClassBuy]), timePtr(rec.LastFired[model.ClassTakeProfit]),
		timePtr(rec.LastFired[model.ClassStopLoss]), timePtr(rec.LastFired[model.ClassDCA]),
		rec.LastBuyDropSent, rec.CreatedAt, rec.UpdatedAt,
	)
	return errors.Wrapf(err, "save rule %s", rec.Key())
}

func (s *PostgresStore) DeleteRule(ctx context.Context, key model.RuleKey) error {
	tag, err := s.pool.Exec(ctx, pgRuleDeleteSQL, int64(key.AccountID), key.Instrument)
	if err != nil {
		return errors.Wrapf(err, "delete rule %s", key)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "rule %s", key)
	}
	return nil
}

func scanPostgresBudget(row pgx.Row) (model.BudgetState, error) {
	var (
		st                             model.BudgetState
		account                        int64
		planSpent, dipSpent, plan, dip string
	)
	if err := row.Scan(&account, &st.WeekStart, &planSpent, &dipSpent, &plan, &dip, &st.UpdatedAt); err != nil {
		return model.BudgetState{}, err
	}
	st.AccountID = model.AccountID(account)
	st.WeekStart = st.WeekStart.UTC()
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

func (s *PostgresStore) GetBudget(ctx context.Context, account model.AccountID) (model.BudgetState, error) {
	st, err := scanPostgresBudget(s.pool.QueryRow(ctx, pgBudgetSelectSQL+` WHERE account_id = $1;`, int64(account)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BudgetState{}, errors.Wrapf(ErrNotFound, "budget %d", account)
	}
	if err != nil {
		return model.BudgetState{}, errors.Wrapf(err, "get budget %d", account)
	}
	return st, nil
}

func (s *PostgresStore) SaveBudget(ctx context.Context, st model.BudgetState) error {
	_, err := s.pool.Exec(ctx, pgBudgetUpsertSQL,
		int64(st.AccountID), st.WeekStart,
		st.PlanSpent.String(), st.DipSpent.String(), st.PlanBudget.String(), st.DipBudget.String(),
		st.UpdatedAt,
	)
	return errors.Wrapf(err, "save budget %d", st.AccountID)
}

func (s *PostgresStore) LoadBudgets(ctx context.Context) ([]model.BudgetState, error) {
	rows, err := s.pool.Query(ctx, pgBudgetSelectSQL+` ORDER BY account_id;`)
	if err != nil {
		return nil, errors.Wrap(err, "query budgets")
	}
	defer rows.Close()

	var out []model.BudgetState
	for rows.Next() {
		st, err := scanPostgresBudget(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan budget")
		}
		out = append(out, st)
	}
	return out, errors.Wrap(rows.Err(), "iterate budgets")
}

func (s *PostgresStore) GetPlan(ctx context.Context, account model.AccountID) ([]model.PlanEntry, error) {
	rows, err := s.pool.Query(ctx, pgPlanSelectSQL, int64(account))
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

func (s *PostgresStore) ReplacePlan(ctx context.Context, account model.AccountID, entries []model.PlanEntry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, pgPlanDeleteSQL, int64(account)); err != nil {
			return errors.Wrap(err, "clear plan")
		}
		for i, e := range entries {
			if _, err := tx.Exec(ctx, pgPlanInsertSQL, int64(account), i, e.Instrument, e.Amount.String()); err != nil {
				return errors.Wrapf(err, "insert plan entry %s", e.Instrument)
			}
		}
		return nil
	})
}

func (s *PostgresStore) PlanAccounts(ctx context.Context) ([]model.AccountID, error) {
	rows, err := s.pool.Query(ctx, pgPlanAccountsSQL)
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

func (s *PostgresStore) RecordIntent(ctx context.Context, intent model.NotificationIntent) error {
	id, err := uuid.Parse(intent.ID)
	if err != nil {
		id = uuid.New()
	}
	h := historyFromIntent(intent)
	_, err = s.pool.Exec(ctx, pgHistoryInsertSQL,
		id.String(), intent.CreatedAt, int64(h.AccountID), h.Instrument, string(h.Class), h.Price, h.DropPct, h.Amount)
	return errors.Wrap(err, "record intent")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
