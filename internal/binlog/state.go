// Package binlog implements the incremental sync core: the paginated
// change-log feed, the per-log resolution state machine with bounded
// retry, and the aggregated batch its hooks fill.
package binlog

import (
	"context"

	"github.com/dxxy/mss-sync/internal/gateway"
)

// Stage is the position of a log inside its resolution chain
type Stage int

const (
	// StageInitial: nothing resolved yet.
	StageInitial Stage = iota
	// StagePrimary: the canonical org/user record is loaded.
	StagePrimary
	// StageTree: the org hierarchy row is loaded (org chain only).
	StageTree
	// StageMapping: the MSS bridge mapping is resolved.
	StageMapping
)

func (s Stage) String() string {
	switch s {
	case StageInitial:
		return "initial"
	case StagePrimary:
		return "primary"
	case StageTree:
		return "tree"
	case StageMapping:
		return "mapping"
	}
	return "unknown"
}

// State carries one log through its chain. Intermediate payloads live on
// the state itself so a transient retry restarts only the failing step.
type State struct {
	Stage Stage
	Log   gateway.ChangeLog

	// Org chain payloads
	Org        *gateway.Org
	Tree       *gateway.OrgTree
	OrgMapping *gateway.MssOrgMapping
	MssCode    string
	MssOrgs    []gateway.MssOrg

	// User chain payloads
	User        *gateway.User
	UserMapping *gateway.MssUserMapping
	HrCode      string
	MssUser     *gateway.MssUser
}

// Outcome of one successful transition
type Outcome int

const (
	// OutcomeAdvanced: the state moved one stage forward.
	OutcomeAdvanced Outcome = iota
	// OutcomeCompleted: the final step resolved; the state is terminal.
	OutcomeCompleted
)

// Resolver is the slice of the gateway client the state machine needs
type Resolver interface {
	OrgLoadByID(ctx context.Context, cid string) (*gateway.Org, error)
	OrgTreeLoadByID(ctx context.Context, cid string) (*gateway.OrgTree, error)
	MssOrgTranslate(ctx context.Context, cid string) (*gateway.MssOrgMapping, error)
	MssOrgQuery(ctx context.Context, mssCode string) ([]gateway.MssOrg, error)
	UserLoadByID(ctx context.Context, cid string) (*gateway.User, error)
	MssUserTranslate(ctx context.Context, cid string) (*gateway.MssUserMapping, error)
	MssUserQuery(ctx context.Context, hrCode string) ([]gateway.MssUser, error)
}

// Processor advances states of one entity kind and applies the batch hooks.
// Advance performs exactly the one resolver step appropriate to the
// state's stage; the driver owns iteration and retry.
type Processor interface {
	Kind() gateway.BinlogKind
	Advance(ctx context.Context, st *State) (Outcome, error)
	// PostAdvance records partial progress into the batch. Called once per
	// successful advance, immediately after it.
	PostAdvance(st *State, b *ProcessedSet, nowMs int64)
	// PostComplete records the final payload. Called once when Advance
	// returns OutcomeCompleted.
	PostComplete(st *State, b *ProcessedSet, nowMs int64)
}
