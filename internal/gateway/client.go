// Package gateway implements the typed RPC client for the MSS gateway: a
// single POST endpoint carrying a JSON envelope, with per-request timeouts
// and transport errors classified for the sync driver.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dxxy/mss-sync/internal/errclass"
	"github.com/dxxy/mss-sync/internal/timex"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Named services exposed by the gateway
const (
	svcOrgLoadByID     = "org_loadbyid"
	svcOrgTreeLoadByID = "org_tree_loadbyid"
	svcMssOrgTranslate = "mss_organization_translate"
	svcMssOrgQuery     = "mss_organization_query"
	svcUserLoadByID    = "user_loadbyid"
	svcMssUserTranslate = "mss_user_translate"
	svcMssUserQuery    = "mss_user_queryorder"
	svcBinlogFind      = "binlog_find"
	svcTrainStatus     = "bj.bjglinfo.gettrainstatusbyid"
)

// throttleCode is the sentinel the gateway returns when the push path must
// back off for 60 seconds.
const throttleCode = "9019"

// ErrThrottled is returned when a reply carries the 9019 backoff sentinel
var ErrThrottled = fmt.Errorf("gateway throttled (code %s)", throttleCode)

// Destination addresses a named service inside the envelope header
type Destination struct {
	Source  uint32 `json:"source"`
	Target  uint32 `json:"target"`
	Service string `json:"service"`
	Mode    int32  `json:"mode"`
	Sync    bool   `json:"sync"`
}

type requestHeader struct {
	MessageID   string      `json:"messageId"`
	OpCode      int         `json:"op_code"`
	Timestamp   int64       `json:"timestamp"`
	Destination Destination `json:"destination"`
}

type requestBody struct {
	Payload []any `json:"payload"`
}

type requestEnvelope struct {
	Header requestHeader `json:"header"`
	Body   requestBody   `json:"body"`
}

type replyHeader struct {
	MessageID   string      `json:"messageId"`
	OpCode      int         `json:"op_code"`
	Timestamp   int64       `json:"timestamp"`
	Destination Destination `json:"destination"`
	MessageCode int32       `json:"message_code"`
	Description string      `json:"description"`
}

type replyBody struct {
	Payload json.RawMessage `json:"payload"`
}

// ReplyEnvelope is the raw reply of one gateway invocation
type ReplyEnvelope struct {
	Header replyHeader `json:"header"`
	Body   replyBody   `json:"body"`
}

// Throttled reports whether the reply payload carries the 9019 sentinel
func (r *ReplyEnvelope) Throttled() bool {
	if len(r.Body.Payload) == 0 {
		return false
	}
	var probe struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(r.Body.Payload, &probe); err != nil {
		return false
	}
	return probe.Code == throttleCode
}

// Client is a thread-safe, stateless gateway client. The only shared state
// is the underlying HTTP connection pool.
type Client struct {
	http    *http.Client
	baseURL string
	source  uint32
	target  uint32
}

// Config holds gateway connection settings
type Config struct {
	BaseURL string
	Source  uint32
	Target  uint32
}

// New builds a Client enforcing the mandatory per-request timeouts:
// connect 5 s, response header 5 s, overall 10 s.
func New(cfg Config) *Client {
	return &Client{
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				ResponseHeaderTimeout: 5 * time.Second,
				MaxIdleConnsPerHost:   10,
			},
		},
		baseURL: cfg.BaseURL,
		source:  cfg.Source,
		target:  cfg.Target,
	}
}

// InvokeService performs one envelope round trip against a named service.
// Transport failures come back tagged transient; a non-2xx status is
// permanent. Throttling is NOT surfaced here — callers on the push path
// check ReplyEnvelope.Throttled.
func (c *Client) InvokeService(ctx context.Context, service string, payload []any) (*ReplyEnvelope, error) {
	env := requestEnvelope{
		Header: requestHeader{
			MessageID: uuid.New().String(),
			OpCode:    1,
			Timestamp: timex.NowMs(),
			Destination: Destination{
				Source:  c.source,
				Target:  c.target,
				Service: service,
				Mode:    0,
				Sync:    true,
			},
		},
		Body: requestBody{Payload: payload},
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, errclass.Permanent(fmt.Errorf("marshal envelope: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(raw))
	if err != nil {
		return nil, errclass.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errclass.Transient(fmt.Errorf("invoke %s: %w", service, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errclass.Transient(fmt.Errorf("read reply for %s: %w", service, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Idempotent 5xx from the wrapping layer is worth a retry; anything
		// in the 4xx range is a caller bug.
		err := fmt.Errorf("invoke %s: status %d: %s", service, resp.StatusCode, truncate(body, 256))
		if resp.StatusCode >= 500 {
			return nil, errclass.Transient(err)
		}
		return nil, errclass.Permanent(err)
	}

	var reply ReplyEnvelope
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, errclass.Permanent(fmt.Errorf("decode reply for %s: %w", service, err))
	}

	log.Debug().
		Str("service", service).
		Str("messageId", env.Header.MessageID).
		Int32("messageCode", reply.Header.MessageCode).
		Msg("gateway call completed")

	return &reply, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// invokeInto invokes service and decodes a non-empty payload into out.
// An empty or null payload leaves out untouched and returns false.
func (c *Client) invokeInto(ctx context.Context, service string, payload []any, out any) (bool, error) {
	reply, err := c.InvokeService(ctx, service, payload)
	if err != nil {
		return false, err
	}
	p := reply.Body.Payload
	if len(p) == 0 || string(p) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(p, out); err != nil {
		return false, errclass.Permanent(fmt.Errorf("decode %s payload: %w", service, err))
	}
	return true, nil
}

// OrgLoadByID resolves the canonical org record for a cid. A nil result
// means the gateway returned no payload.
func (c *Client) OrgLoadByID(ctx context.Context, cid string) (*Org, error) {
	var org Org
	ok, err := c.invokeInto(ctx, svcOrgLoadByID, []any{cid}, &org)
	if err != nil || !ok {
		return nil, err
	}
	return &org, nil
}

// OrgTreeLoadByID resolves the hierarchy row for a cid
func (c *Client) OrgTreeLoadByID(ctx context.Context, cid string) (*OrgTree, error) {
	var tree OrgTree
	ok, err := c.invokeInto(ctx, svcOrgTreeLoadByID, []any{cid}, &tree)
	if err != nil || !ok {
		return nil, err
	}
	return &tree, nil
}

// MssOrgTranslate resolves the code↔mssCode bridge for a cid
func (c *Client) MssOrgTranslate(ctx context.Context, cid string) (*MssOrgMapping, error) {
	var m MssOrgMapping
	ok, err := c.invokeInto(ctx, svcMssOrgTranslate, []any{cid}, &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

// MssOrgQuery loads the external org representations for an mssCode
func (c *Client) MssOrgQuery(ctx context.Context, mssCode string) ([]MssOrg, error) {
	var orgs []MssOrg
	ok, err := c.invokeInto(ctx, svcMssOrgQuery, []any{mssCode}, &orgs)
	if err != nil || !ok {
		return nil, err
	}
	return orgs, nil
}

// UserLoadByID resolves the canonical user record for a cid
func (c *Client) UserLoadByID(ctx context.Context, cid string) (*User, error) {
	var user User
	ok, err := c.invokeInto(ctx, svcUserLoadByID, []any{cid}, &user)
	if err != nil || !ok {
		return nil, err
	}
	return &user, nil
}

// MssUserTranslate resolves the uid↔hrCode bridge for a cid
func (c *Client) MssUserTranslate(ctx context.Context, cid string) (*MssUserMapping, error) {
	var m MssUserMapping
	ok, err := c.invokeInto(ctx, svcMssUserTranslate, []any{cid}, &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

// MssUserQuery loads the candidate external user records for an hrCode
func (c *Client) MssUserQuery(ctx context.Context, hrCode string) ([]MssUser, error) {
	var users []MssUser
	ok, err := c.invokeInto(ctx, svcMssUserQuery, []any{hrCode}, &users)
	if err != nil || !ok {
		return nil, err
	}
	return users, nil
}

// TrainStatusByID looks up the MSS-side delivery status for a train id. A
// nil result means MSS does not know the id.
func (c *Client) TrainStatusByID(ctx context.Context, trainID string) (*TrainStatus, error) {
	var ts TrainStatus
	ok, err := c.invokeInto(ctx, svcTrainStatus, []any{trainID}, &ts)
	if err != nil || !ok {
		return nil, err
	}
	return &ts, nil
}

// BinlogFind pulls one page of change logs for the given kind and window
func (c *Client) BinlogFind(ctx context.Context, kind BinlogKind, startMs, endMs int64, page int) (*BinlogPage, error) {
	var res BinlogPage
	ok, err := c.invokeInto(ctx, svcBinlogFind, []any{string(kind), startMs, endMs, page}, &res)
	if err != nil || !ok {
		return nil, err
	}
	return &res, nil
}
