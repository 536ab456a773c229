package binlog

import "github.com/dxxy/mss-sync/internal/gateway"

// ProcessedSet is the aggregate a run hands to the transactional sink.
// Lists are append-only so Merge stays associative; deduplication by
// natural key happens at write time.
type ProcessedSet struct {
	Orgs           []gateway.Org
	OrgIDsToDelete []string

	Trees           []gateway.OrgTree
	TreeIDsToDelete []string

	OrgMappings             []gateway.MssOrgMapping
	OrgMappingCodesToDelete []string

	MssOrgs             []gateway.MssOrg
	MssOrgCodesToDelete []string

	Users           []gateway.User
	UserIDsToDelete []string

	UserMappings            []gateway.MssUserMapping
	UserMappingUIDsToDelete []string

	MssUsers        []gateway.MssUser
	HrCodesToDelete []string
	// JobNumbersToDelete is written only from the completion hook while
	// HrCodesToDelete is written at the mapping stage; both delete paths
	// are kept (they target different columns).
	JobNumbersToDelete []string
}

// NewProcessedSet returns an empty aggregate
func NewProcessedSet() *ProcessedSet {
	return &ProcessedSet{}
}

// Merge appends o's lists onto p. Append-only by contract.
func (p *ProcessedSet) Merge(o *ProcessedSet) {
	if o == nil {
		return
	}
	p.Orgs = append(p.Orgs, o.Orgs...)
	p.OrgIDsToDelete = append(p.OrgIDsToDelete, o.OrgIDsToDelete...)
	p.Trees = append(p.Trees, o.Trees...)
	p.TreeIDsToDelete = append(p.TreeIDsToDelete, o.TreeIDsToDelete...)
	p.OrgMappings = append(p.OrgMappings, o.OrgMappings...)
	p.OrgMappingCodesToDelete = append(p.OrgMappingCodesToDelete, o.OrgMappingCodesToDelete...)
	p.MssOrgs = append(p.MssOrgs, o.MssOrgs...)
	p.MssOrgCodesToDelete = append(p.MssOrgCodesToDelete, o.MssOrgCodesToDelete...)
	p.Users = append(p.Users, o.Users...)
	p.UserIDsToDelete = append(p.UserIDsToDelete, o.UserIDsToDelete...)
	p.UserMappings = append(p.UserMappings, o.UserMappings...)
	p.UserMappingUIDsToDelete = append(p.UserMappingUIDsToDelete, o.UserMappingUIDsToDelete...)
	p.MssUsers = append(p.MssUsers, o.MssUsers...)
	p.HrCodesToDelete = append(p.HrCodesToDelete, o.HrCodesToDelete...)
	p.JobNumbersToDelete = append(p.JobNumbersToDelete, o.JobNumbersToDelete...)
}

// Empty reports whether the aggregate holds nothing to write
func (p *ProcessedSet) Empty() bool {
	return len(p.Orgs) == 0 && len(p.OrgIDsToDelete) == 0 &&
		len(p.Trees) == 0 && len(p.TreeIDsToDelete) == 0 &&
		len(p.OrgMappings) == 0 && len(p.OrgMappingCodesToDelete) == 0 &&
		len(p.MssOrgs) == 0 && len(p.MssOrgCodesToDelete) == 0 &&
		len(p.Users) == 0 && len(p.UserIDsToDelete) == 0 &&
		len(p.UserMappings) == 0 && len(p.UserMappingUIDsToDelete) == 0 &&
		len(p.MssUsers) == 0 && len(p.HrCodesToDelete) == 0 &&
		len(p.JobNumbersToDelete) == 0
}
