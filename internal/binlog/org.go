package binlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dxxy/mss-sync/internal/errclass"
	"github.com/dxxy/mss-sync/internal/gateway"
	"github.com/dxxy/mss-sync/internal/timex"
)

// OrgProcessor resolves organization logs through the four-step chain:
// load org, load tree, translate to mssCode, query MSS representations.
type OrgProcessor struct {
	gw Resolver
}

// NewOrgProcessor creates the org-chain processor
func NewOrgProcessor(gw Resolver) *OrgProcessor {
	return &OrgProcessor{gw: gw}
}

// Kind returns the entity family this processor handles
func (p *OrgProcessor) Kind() gateway.BinlogKind { return gateway.KindOrg }

// Advance performs the single resolver step for the state's stage
func (p *OrgProcessor) Advance(ctx context.Context, st *State) (Outcome, error) {
	switch st.Stage {
	case StageInitial:
		if st.Log.CID == "" {
			return 0, errclass.Permanent(fmt.Errorf("log %s: cid absent", st.Log.ID))
		}
		org, err := p.gw.OrgLoadByID(ctx, st.Log.CID)
		if err != nil {
			return 0, err
		}
		if org == nil {
			return 0, errclass.Permanent(fmt.Errorf("log %s: org %s not found", st.Log.ID, st.Log.CID))
		}
		st.Org = org
		st.Stage = StagePrimary
		return OutcomeAdvanced, nil

	case StagePrimary:
		tree, err := p.gw.OrgTreeLoadByID(ctx, st.Log.CID)
		if err != nil {
			return 0, err
		}
		if tree == nil {
			return 0, errclass.Permanent(fmt.Errorf("log %s: org tree %s not found", st.Log.ID, st.Log.CID))
		}
		st.Tree = tree
		st.Stage = StageTree
		return OutcomeAdvanced, nil

	case StageTree:
		mapping, err := p.gw.MssOrgTranslate(ctx, st.Log.CID)
		if err != nil {
			return 0, err
		}
		if mapping == nil || mapping.MssCode == "" {
			return 0, errclass.Permanent(fmt.Errorf("log %s: no mssCode for org %s", st.Log.ID, st.Log.CID))
		}
		st.OrgMapping = mapping
		st.MssCode = mapping.MssCode
		st.Stage = StageMapping
		return OutcomeAdvanced, nil

	case StageMapping:
		orgs, err := p.gw.MssOrgQuery(ctx, st.MssCode)
		if err != nil {
			return 0, err
		}
		if len(orgs) == 0 {
			return 0, errclass.Permanent(fmt.Errorf("log %s: mss query empty for %s", st.Log.ID, st.MssCode))
		}
		st.MssOrgs = orgs
		return OutcomeCompleted, nil
	}
	return 0, errclass.Permanent(fmt.Errorf("log %s: advance on unexpected stage %s", st.Log.ID, st.Stage))
}

// PostAdvance pushes the stage's delete key, and the stamped record when
// the log type requires an insert.
func (p *OrgProcessor) PostAdvance(st *State, b *ProcessedSet, nowMs int64) {
	switch st.Stage {
	case StagePrimary:
		b.OrgIDsToDelete = append(b.OrgIDsToDelete, st.Org.ID)
		if st.Log.InsertEligible() {
			org := *st.Org
			stampOrg(&org, nowMs)
			b.Orgs = append(b.Orgs, org)
		}
	case StageTree:
		b.TreeIDsToDelete = append(b.TreeIDsToDelete, st.Tree.ID)
		if st.Log.InsertEligible() {
			tree := *st.Tree
			tree.Path = strings.Join(tree.Ancestors, "/")
			b.Trees = append(b.Trees, tree)
		}
	case StageMapping:
		if st.OrgMapping.Code != "" {
			b.OrgMappingCodesToDelete = append(b.OrgMappingCodesToDelete, st.OrgMapping.Code)
		}
		b.MssOrgCodesToDelete = append(b.MssOrgCodesToDelete, st.MssCode)
		if st.Log.InsertEligible() {
			b.OrgMappings = append(b.OrgMappings, *st.OrgMapping)
		}
	}
}

// PostComplete stamps and pushes the final MSS org rows
func (p *OrgProcessor) PostComplete(st *State, b *ProcessedSet, nowMs int64) {
	if !st.Log.InsertEligible() {
		return
	}
	now := time.UnixMilli(nowMs)
	year, month := timex.YearMonth(now)
	for _, mo := range st.MssOrgs {
		mo.MssCode = st.MssCode
		mo.Year = year
		mo.Month = month
		mo.HitDate1 = nowMs
		mo.HitDate = timex.DateTime(now)
		b.MssOrgs = append(b.MssOrgs, mo)
	}
}

func stampOrg(org *gateway.Org, nowMs int64) {
	now := time.UnixMilli(nowMs)
	org.Year, org.Month = timex.YearMonth(now)
	org.InTime = nowMs
	org.HitDate1 = nowMs
	org.HitDate = timex.Date(now)
}
