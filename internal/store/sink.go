package store

import (
	"context"
	"fmt"

	"github.com/dxxy/mss-sync/internal/binlog"
	"github.com/dxxy/mss-sync/internal/gateway"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// deleteChunkSize bounds the parameter list of a single DELETE ... IN
const deleteChunkSize = 500

// insertChunkSize bounds the row count of a single multi-row INSERT
const insertChunkSize = 200

const insertOrgSQL = `
INSERT INTO d_telecom_org
	(id, name, shortName, status, orgType, parentId, sortOrder, createTime, modifyTime,
	 companyId, companyName, phone, email, address, deptId, deptName, deptType,
	 year, month, inTime, hitDate1, hitDate)
VALUES
	(:id, :name, :shortName, :status, :orgType, :parentId, :sortOrder, :createTime, :modifyTime,
	 :companyInfo.companyId, :companyInfo.companyName, :contactInfo.phone, :contactInfo.email, :contactInfo.address,
	 :departmentInfo.deptId, :departmentInfo.deptName, :departmentInfo.deptType,
	 :year, :month, :inTime, :hitDate1, :hitDate)`

const insertOrgTreeSQL = `
INSERT INTO d_telecom_org_tree (id, parent, level, path)
VALUES (:id, :parent, :level, :path)`

const insertOrgMappingSQL = `
INSERT INTO d_mss_org_mapping (code, mssCode)
VALUES (:code, :mssCode)`

const insertMssOrgSQL = `
INSERT INTO d_mss_org
	(id, hrCode, mssCode, hrName, parentHrCode, orgLevel, year, month, hitDate1, hitDate)
VALUES
	(:id, :hrCode, :mssCode, :hrName, :parentHrCode, :orgLevel, :year, :month, :hitDate1, :hitDate)`

const insertUserSQL = `
INSERT INTO d_telecom_user
	(id, account, name, status, orgId, createTime, modifyTime,
	 phone, email, address, archiveId, archiveOrg,
	 baseStation, jobInfo, nameCard, authorizeInfo,
	 year, month, inTime, hitDate1, hitDate)
VALUES
	(:id, :account, :name, :status, :orgId, :createTime, :modifyTime,
	 :contactInfo.phone, :contactInfo.email, :contactInfo.address,
	 :archivesInfo.archiveId, :archivesInfo.archiveOrg,
	 :ext.baseStation, :ext.jobInfo, :ext.nameCard, :ext.authorizeInfo,
	 :year, :month, :inTime, :hitDate1, :hitDate)`

const insertUserMappingSQL = `
INSERT INTO d_mss_user_mapping (uid, hrCode)
VALUES (:uid, :hrCode)`

const insertMssUserSQL = `
INSERT INTO d_mss_user
	(id, hrCode, jobNumber, userStatus, jobType, hrJobType, time, year, month, hitDate1, hitDate)
VALUES
	(:id, :hrCode, :jobNumber, :userStatus, :jobType, :hrJobType, :time, :year, :month, :hitDate1, :hitDate)`

// Sink writes a run's aggregate within a single OLTP transaction:
// deduplicated deletes first, then deduplicated inserts, giving key-level
// overwrite semantics at commit.
type Sink struct {
	db *sqlx.DB
}

// NewSink creates a sink on the OLTP pool
func NewSink(db *sqlx.DB) *Sink {
	return &Sink{db: db}
}

// Commit persists the aggregate. On error nothing is written and the
// caller must not advance the watermark.
func (s *Sink) Commit(ctx context.Context, set *binlog.ProcessedSet) error {
	if set == nil || set.Empty() {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sink transaction: %w", err)
	}
	defer tx.Rollback()

	// Deletes run first so every insert overwrites its key.
	deletes := []struct {
		table  string
		column string
		keys   []string
	}{
		{"d_telecom_org", "id", set.OrgIDsToDelete},
		{"d_telecom_org_tree", "id", set.TreeIDsToDelete},
		{"d_mss_org_mapping", "code", set.OrgMappingCodesToDelete},
		{"d_mss_org", "mssCode", set.MssOrgCodesToDelete},
		{"d_telecom_user", "id", set.UserIDsToDelete},
		{"d_mss_user_mapping", "uid", set.UserMappingUIDsToDelete},
		{"d_mss_user", "hrCode", set.HrCodesToDelete},
		{"d_mss_user", "jobNumber", set.JobNumbersToDelete},
	}
	for _, d := range deletes {
		if err := deleteByKey(ctx, tx, d.table, d.column, d.keys); err != nil {
			return err
		}
	}

	if err := insertRows(ctx, tx, insertOrgSQL, dedupBy(set.Orgs, func(o gateway.Org) string { return o.ID })); err != nil {
		return fmt.Errorf("insert d_telecom_org: %w", err)
	}
	if err := insertRows(ctx, tx, insertOrgTreeSQL, dedupBy(set.Trees, func(t gateway.OrgTree) string { return t.ID })); err != nil {
		return fmt.Errorf("insert d_telecom_org_tree: %w", err)
	}
	if err := insertRows(ctx, tx, insertOrgMappingSQL, dedupBy(set.OrgMappings, func(m gateway.MssOrgMapping) string { return m.Code })); err != nil {
		return fmt.Errorf("insert d_mss_org_mapping: %w", err)
	}
	if err := insertRows(ctx, tx, insertMssOrgSQL, dedupBy(set.MssOrgs, func(m gateway.MssOrg) string { return m.ID })); err != nil {
		return fmt.Errorf("insert d_mss_org: %w", err)
	}
	if err := insertRows(ctx, tx, insertUserSQL, dedupBy(set.Users, func(u gateway.User) string { return u.ID })); err != nil {
		return fmt.Errorf("insert d_telecom_user: %w", err)
	}
	if err := insertRows(ctx, tx, insertUserMappingSQL, dedupBy(set.UserMappings, func(m gateway.MssUserMapping) string { return m.UID })); err != nil {
		return fmt.Errorf("insert d_mss_user_mapping: %w", err)
	}
	if err := insertRows(ctx, tx, insertMssUserSQL, dedupBy(set.MssUsers, func(u gateway.MssUser) string { return u.ID })); err != nil {
		return fmt.Errorf("insert d_mss_user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sink transaction: %w", err)
	}

	log.Info().
		Int("orgs", len(set.Orgs)).
		Int("trees", len(set.Trees)).
		Int("users", len(set.Users)).
		Int("mss_orgs", len(set.MssOrgs)).
		Int("mss_users", len(set.MssUsers)).
		Msg("sink transaction committed")
	return nil
}

// deleteByKey issues chunked DELETE ... WHERE col IN (...) for the
// deduplicated keys.
func deleteByKey(ctx context.Context, tx *sqlx.Tx, table, column string, keys []string) error {
	keys = dedupStrings(keys)
	for _, chunk := range chunkStrings(keys, deleteChunkSize) {
		query, args, err := sqlx.In(
			fmt.Sprintf("DELETE FROM %s WHERE %s IN (?)", table, column), chunk)
		if err != nil {
			return fmt.Errorf("build delete for %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("delete from %s by %s: %w", table, column, err)
		}
	}
	return nil
}

// insertRows issues chunked multi-row named inserts
func insertRows[T any](ctx context.Context, tx *sqlx.Tx, query string, rows []T) error {
	for _, chunk := range chunkSlice(rows, insertChunkSize) {
		if _, err := tx.NamedExecContext(ctx, query, chunk); err != nil {
			return err
		}
	}
	return nil
}

// dedupBy keeps the last row per natural key, preserving first-seen order.
// Last-wins matches overwrite semantics when one run touched a key twice.
func dedupBy[T any](rows []T, key func(T) string) []T {
	if len(rows) == 0 {
		return nil
	}
	index := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if i, seen := index[k]; seen {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// dedupStrings removes duplicate keys preserving order
func dedupStrings(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// chunkStrings splits keys into size-bounded chunks
func chunkStrings(keys []string, size int) [][]string {
	return chunkSlice(keys, size)
}

func chunkSlice[T any](rows []T, size int) [][]T {
	if len(rows) == 0 {
		return nil
	}
	var chunks [][]T
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
