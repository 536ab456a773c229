package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Derived reporting tables are refreshed delete-then-reinsert, keyed by the
// id set a run touched. The reinsert templates get a dynamic WHERE ... IN
// clause appended. Refresh runs in its own transaction after the main
// commit and is best-effort: failures are logged by the caller and never
// block the watermark.

const refreshUserSelectTpl = `
INSERT INTO mc_user_ztk
	(id, account, name, status, orgId, hrCode, jobNumber, year, month, hitDate)
SELECT
	u.id, u.account, u.name, u.status, u.orgId, m.hrCode, mu.jobNumber, u.year, u.month, u.hitDate
FROM d_telecom_user u
LEFT JOIN d_mss_user_mapping m ON m.uid = u.id
LEFT JOIN d_mss_user mu ON mu.hrCode = m.hrCode
WHERE u.id IN (?)`

const refreshOrgSelectTpl = `
INSERT INTO mc_org_show
	(id, name, shortName, status, parentId, level, path, mssCode, year, month, hitDate)
SELECT
	o.id, o.name, o.shortName, o.status, o.parentId, t.level, t.path, m.mssCode, o.year, o.month, o.hitDate
FROM d_telecom_org o
LEFT JOIN d_telecom_org_tree t ON t.id = o.id
LEFT JOIN d_mss_org_mapping m ON m.code = o.id
WHERE o.id IN (?)`

// RefreshUserDerived rebuilds the mc_user_ztk rows for the given user ids
func (s *Sink) RefreshUserDerived(ctx context.Context, ids []string) error {
	return s.refresh(ctx, "mc_user_ztk", refreshUserSelectTpl, ids)
}

// RefreshOrgDerived rebuilds the mc_org_show rows for the given org ids
func (s *Sink) RefreshOrgDerived(ctx context.Context, ids []string) error {
	return s.refresh(ctx, "mc_org_show", refreshOrgSelectTpl, ids)
}

func (s *Sink) refresh(ctx context.Context, table, reinsertTpl string, ids []string) error {
	ids = dedupStrings(ids)
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh transaction: %w", err)
	}
	defer tx.Rollback()

	for _, chunk := range chunkStrings(ids, deleteChunkSize) {
		query, args, err := sqlx.In(fmt.Sprintf("DELETE FROM %s WHERE id IN (?)", table), chunk)
		if err != nil {
			return fmt.Errorf("build refresh delete for %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("refresh delete %s: %w", table, err)
		}

		query, args, err = sqlx.In(reinsertTpl, chunk)
		if err != nil {
			return fmt.Errorf("build refresh reinsert for %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("refresh reinsert %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh for %s: %w", table, err)
	}

	log.Info().Str("table", table).Int("ids", len(ids)).Msg("derived table refreshed")
	return nil
}
