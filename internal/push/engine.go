package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/dxxy/mss-sync/internal/gateway"
	"github.com/dxxy/mss-sync/internal/timex"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Reconciled status values written to trainNotifyMss.
const (
	statusPushed = "1"
	statusFailed = "2"
)

// maxAttempts bounds one row's delivery: the first attempt plus retries
// while the gateway keeps answering with the throttle sentinel.
const maxAttempts = 5

// reconcileChunkSize bounds the id list of one reconciliation statement
const reconcileChunkSize = 1000

// Invoker is the slice of the gateway client the engine needs: raw
// envelope delivery plus the train-status lookup.
type Invoker interface {
	InvokeService(ctx context.Context, service string, payload []any) (*gateway.ReplyEnvelope, error)
	TrainStatusByID(ctx context.Context, trainID string) (*gateway.TrainStatus, error)
}

// Fanout executes one statement across every ClickHouse node
type Fanout interface {
	ExecAll(ctx context.Context, query string, args ...any) bool
}

// Filter selects the rows a push run covers: a single hitDate, or an
// explicit id set.
type Filter struct {
	HitDate  string
	TrainIDs []string
}

// Engine pushes archived rows to MSS and reconciles per-row delivery
// status back into ClickHouse and MySQL.
type Engine struct {
	db *sqlx.DB
	ch Fanout
	gw Invoker

	// preSleep runs before every gateway request, throttleWait between
	// attempts after a 9019 reply.
	preSleep     time.Duration
	throttleWait time.Duration
}

// NewEngine builds an engine with the production pacing
func NewEngine(db *sqlx.DB, ch Fanout, gw Invoker) *Engine {
	return &Engine{
		db:           db,
		ch:           ch,
		gw:           gw,
		preSleep:     20 * time.Millisecond,
		throttleWait: 60 * time.Second,
	}
}

// RunDaily pushes yesterday's rows for every variant
func (e *Engine) RunDaily(ctx context.Context) error {
	day := timex.Yesterday()
	return e.RunByDateRange(ctx, day, day)
}

// RunByDateRange pushes every variant for each day in [begin, end],
// dates formatted YYYY-MM-DD.
func (e *Engine) RunByDateRange(ctx context.Context, begin, end string) error {
	from, err := time.Parse("2006-01-02", begin)
	if err != nil {
		return fmt.Errorf("parse beginDate %q: %w", begin, err)
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return fmt.Errorf("parse endDate %q: %w", end, err)
	}
	if to.Before(from) {
		return fmt.Errorf("endDate %s before beginDate %s", end, begin)
	}

	var errs []error
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		errs = append(errs, e.runAll(ctx, Filter{HitDate: day.Format("2006-01-02")}))
	}
	return errors.Join(errs...)
}

// RunByTrainIDs pushes every variant for an explicit id set. Each id's
// MSS-side status is looked up first; ids MSS already reports as delivered
// are skipped.
func (e *Engine) RunByTrainIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return errors.New("no train ids given")
	}

	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		st, err := e.gw.TrainStatusByID(ctx, id)
		if err != nil {
			return fmt.Errorf("train status %s: %w", id, err)
		}
		if st != nil && st.NotifyStatus == statusPushed {
			log.Info().Str("trainId", id).Msg("train already delivered, skipped")
			continue
		}
		pending = append(pending, id)
	}
	if len(pending) == 0 {
		log.Info().Int("requested", len(ids)).Msg("all trains already delivered, nothing to push")
		return nil
	}
	return e.runAll(ctx, Filter{TrainIDs: pending})
}

func (e *Engine) runAll(ctx context.Context, f Filter) error {
	var errs []error
	for _, v := range Variants {
		if err := e.runVariant(ctx, v, f); err != nil {
			log.Error().Err(err).Str("variant", v.Name).Msg("push variant failed")
			errs = append(errs, fmt.Errorf("push %s: %w", v.Name, err))
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}
	return errors.Join(errs...)
}

// runVariant loads the variant's rows, delivers them one by one and
// reconciles the outcome. A row that MSS rejects does not stop the run;
// its id is reconciled with the failed status instead.
func (e *Engine) runVariant(ctx context.Context, v Variant, f Filter) error {
	rows, err := e.loadRows(ctx, v, f)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		log.Debug().Str("variant", v.Name).Str("hitDate", f.HitDate).Msg("no rows to push")
		return nil
	}

	results := make([]rowStatus, 0, len(rows))
	for _, row := range rows {
		id := fmt.Sprintf("%v", row[v.IDColumn])
		if err := e.sendRow(ctx, v, row); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Str("variant", v.Name).Str("id", id).Msg("push row rejected")
			results = append(results, rowStatus{id: id, message: err.Error()})
			continue
		}
		results = append(results, rowStatus{id: id, ok: true})
	}

	if err := e.reconcile(ctx, v, results); err != nil {
		return err
	}

	pushed := 0
	for _, r := range results {
		if r.ok {
			pushed++
		}
	}
	log.Info().
		Str("variant", v.Name).
		Int("rows", len(results)).
		Int("pushed", pushed).
		Int("failed", len(results)-pushed).
		Msg("push variant completed")
	return nil
}

type rowStatus struct {
	id      string
	ok      bool
	message string
}

func (r rowStatus) status() string {
	if r.ok {
		return statusPushed
	}
	return statusFailed
}

// loadRows reads the variant's source rows as generic column maps, so the
// envelope carries whatever columns the table has.
func (e *Engine) loadRows(ctx context.Context, v Variant, f Filter) ([]map[string]any, error) {
	var (
		query string
		args  []any
	)
	if len(f.TrainIDs) > 0 {
		q, a, err := sqlx.In(fmt.Sprintf("SELECT * FROM %s WHERE %s IN (?)", v.Table, v.IDColumn), f.TrainIDs)
		if err != nil {
			return nil, fmt.Errorf("build %s id query: %w", v.Table, err)
		}
		query, args = e.db.Rebind(q), a
	} else {
		query = fmt.Sprintf("SELECT * FROM %s WHERE hitDate = ?", v.Table)
		args = []any{f.HitDate}
	}

	rows, err := e.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load %s rows: %w", v.Table, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", v.Table, err)
		}
		out = append(out, normalizeRow(row))
	}
	return out, rows.Err()
}

// normalizeRow turns driver byte slices into strings so the JSON envelope
// carries text instead of base64.
func normalizeRow(row map[string]any) map[string]any {
	for k, val := range row {
		if b, ok := val.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}

// sendRow delivers one row as a tagged envelope. Every attempt is preceded
// by the mandatory pacing sleep; a throttled reply is retried after the
// backoff window, anything else ends the retry loop.
func (e *Engine) sendRow(ctx context.Context, v Variant, row map[string]any) error {
	payload := []any{map[string]any{v.EnvelopeKey: []any{row}}}

	var reply *gateway.ReplyEnvelope
	err := retry.Do(
		func() error {
			time.Sleep(e.preSleep)
			r, err := e.gw.InvokeService(ctx, v.Service, payload)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if r.Throttled() {
				return gateway.ErrThrottled
			}
			reply = r
			return nil
		},
		retry.Attempts(maxAttempts),
		retry.Delay(e.throttleWait),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return err
	}
	return parseReply(v.Service, reply)
}

// parseReply checks the business status inside the reply payload. An empty
// payload or descCode 200 counts as accepted.
func parseReply(service string, reply *gateway.ReplyEnvelope) error {
	p := reply.Body.Payload
	if len(p) == 0 || string(p) == "null" {
		return nil
	}
	var probe struct {
		DescCode string `json:"descCode"`
		Desc     string `json:"desc"`
	}
	if err := json.Unmarshal(p, &probe); err != nil {
		return fmt.Errorf("decode %s push reply: %w", service, err)
	}
	if probe.DescCode != "" && probe.DescCode != "200" {
		return fmt.Errorf("%s rejected push: code %s: %s", service, probe.DescCode, probe.Desc)
	}
	return nil
}

// reconcile writes each row's status back, chunked. ClickHouse updates are
// fan-out best-effort; the MySQL update is authoritative and its failure
// fails the variant.
func (e *Engine) reconcile(ctx context.Context, v Variant, results []rowStatus) error {
	for _, chunk := range chunkStatuses(results, reconcileChunkSize) {
		e.reconcileClickHouse(ctx, v, chunk)

		query, args := buildCaseUpdate(v, chunk)
		if _, err := e.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("reconcile %s: %w", v.Table, err)
		}
	}
	return nil
}

func (e *Engine) reconcileClickHouse(ctx context.Context, v Variant, chunk []rowStatus) {
	for _, status := range []string{statusPushed, statusFailed} {
		var ids []any
		for _, r := range chunk {
			if r.status() == status {
				ids = append(ids, r.id)
			}
		}
		if len(ids) == 0 {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s UPDATE trainNotifyMss = '%s' WHERE %s IN (%s)",
			v.CHTable, status, v.CHIDColumn, placeholders(len(ids)))
		if !e.ch.ExecAll(ctx, query, ids...) {
			log.Warn().Str("variant", v.Name).Str("status", status).Msg("clickhouse reconcile incomplete")
		}
	}
}

// buildCaseUpdate renders the per-id status update. Lecturer variants also
// carry the rejection text; NULL clears it on success.
func buildCaseUpdate(v Variant, chunk []rowStatus) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)

	fmt.Fprintf(&sb, "UPDATE %s SET trainNotifyMss = CASE %s", v.Table, v.IDColumn)
	for _, r := range chunk {
		sb.WriteString(" WHEN ? THEN ?")
		args = append(args, r.id, r.status())
	}
	sb.WriteString(" END")

	if v.CarryMessage {
		fmt.Fprintf(&sb, ", trainNotifyMssMessage = CASE %s", v.IDColumn)
		for _, r := range chunk {
			sb.WriteString(" WHEN ? THEN ?")
			if r.ok {
				args = append(args, r.id, nil)
			} else {
				args = append(args, r.id, r.message)
			}
		}
		sb.WriteString(" END")
	}

	fmt.Fprintf(&sb, " WHERE %s IN (%s)", v.IDColumn, placeholders(len(chunk)))
	for _, r := range chunk {
		args = append(args, r.id)
	}
	return sb.String(), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func chunkStatuses(rows []rowStatus, size int) [][]rowStatus {
	if len(rows) == 0 {
		return nil
	}
	var chunks [][]rowStatus
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
