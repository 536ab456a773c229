package binlog

import (
	"context"
	"fmt"
	"time"

	"github.com/dxxy/mss-sync/internal/errclass"
	"github.com/dxxy/mss-sync/internal/gateway"
	"github.com/dxxy/mss-sync/internal/timex"
)

// UserProcessor resolves user logs through the three-step chain: load
// user, translate to hrCode, query MSS candidates and select the minimum
// under the (userStatus, jobType, hrJobType, time desc) order.
type UserProcessor struct {
	gw Resolver
}

// NewUserProcessor creates the user-chain processor
func NewUserProcessor(gw Resolver) *UserProcessor {
	return &UserProcessor{gw: gw}
}

// Kind returns the entity family this processor handles
func (p *UserProcessor) Kind() gateway.BinlogKind { return gateway.KindUser }

// Advance performs the single resolver step for the state's stage. The
// user chain has no tree stage; primary advances straight to mapping.
func (p *UserProcessor) Advance(ctx context.Context, st *State) (Outcome, error) {
	switch st.Stage {
	case StageInitial:
		if st.Log.CID == "" {
			return 0, errclass.Permanent(fmt.Errorf("log %s: cid absent", st.Log.ID))
		}
		user, err := p.gw.UserLoadByID(ctx, st.Log.CID)
		if err != nil {
			return 0, err
		}
		if user == nil {
			return 0, errclass.Permanent(fmt.Errorf("log %s: user %s not found", st.Log.ID, st.Log.CID))
		}
		st.User = user
		st.Stage = StagePrimary
		return OutcomeAdvanced, nil

	case StagePrimary:
		mapping, err := p.gw.MssUserTranslate(ctx, st.Log.CID)
		if err != nil {
			return 0, err
		}
		if mapping == nil || mapping.HrCode == "" {
			return 0, errclass.Permanent(fmt.Errorf("log %s: no hrCode for user %s", st.Log.ID, st.Log.CID))
		}
		st.UserMapping = mapping
		st.HrCode = mapping.HrCode
		st.Stage = StageMapping
		return OutcomeAdvanced, nil

	case StageMapping:
		candidates, err := p.gw.MssUserQuery(ctx, st.HrCode)
		if err != nil {
			return 0, err
		}
		if len(candidates) == 0 {
			return 0, errclass.Permanent(fmt.Errorf("log %s: mss query empty for %s", st.Log.ID, st.HrCode))
		}
		st.MssUser = selectMssUser(candidates)
		return OutcomeCompleted, nil
	}
	return 0, errclass.Permanent(fmt.Errorf("log %s: advance on unexpected stage %s", st.Log.ID, st.Stage))
}

// selectMssUser picks the minimum candidate. The scan keeps the first of
// equivalent candidates, so selection is stable under permutation.
func selectMssUser(candidates []gateway.MssUser) *gateway.MssUser {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Less(best) {
			best = c
		}
	}
	return &best
}

// PostAdvance pushes the stage's delete key, and the stamped record when
// the log type requires an insert.
func (p *UserProcessor) PostAdvance(st *State, b *ProcessedSet, nowMs int64) {
	switch st.Stage {
	case StagePrimary:
		b.UserIDsToDelete = append(b.UserIDsToDelete, st.User.ID)
		if st.Log.InsertEligible() {
			user := *st.User
			stampUser(&user, nowMs)
			b.Users = append(b.Users, user)
		}
	case StageMapping:
		if st.UserMapping.UID != "" {
			b.UserMappingUIDsToDelete = append(b.UserMappingUIDsToDelete, st.UserMapping.UID)
		}
		b.HrCodesToDelete = append(b.HrCodesToDelete, st.HrCode)
		if st.Log.InsertEligible() {
			b.UserMappings = append(b.UserMappings, *st.UserMapping)
		}
	}
}

// PostComplete stamps and pushes the single selected MSS user
func (p *UserProcessor) PostComplete(st *State, b *ProcessedSet, nowMs int64) {
	if st.MssUser != nil && st.MssUser.JobNumber != "" {
		b.JobNumbersToDelete = append(b.JobNumbersToDelete, st.MssUser.JobNumber)
	}
	if !st.Log.InsertEligible() {
		return
	}
	now := time.UnixMilli(nowMs)
	mu := *st.MssUser
	mu.Year, mu.Month = timex.YearMonth(now)
	mu.HitDate1 = nowMs
	mu.HitDate = timex.DateTime(now)
	b.MssUsers = append(b.MssUsers, mu)
}

func stampUser(user *gateway.User, nowMs int64) {
	now := time.UnixMilli(nowMs)
	user.Year, user.Month = timex.YearMonth(now)
	user.InTime = nowMs
	user.HitDate1 = nowMs
	user.HitDate = timex.Date(now)
}
