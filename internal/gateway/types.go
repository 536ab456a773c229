package gateway

// BinlogKind selects which entity family a change-log query covers
type BinlogKind string

const (
	KindOrg  BinlogKind = "org"
	KindUser BinlogKind = "user"
)

// Change-log type values that require a downstream insert in addition to
// the delete-by-key. Everything else is delete-only.
const (
	LogTypeUpsert        = 1
	LogTypeUpsertVariant = 2
	LogTypeDelete        = 3
)

// EntityMeta carries optional creation metadata on a change log
type EntityMeta struct {
	DateCreated *int64 `json:"dateCreated,omitempty"`
}

// ChangeLog is an immutable record of one upstream mutation. It is consumed
// once per window and never mutated locally.
type ChangeLog struct {
	ID             string     `json:"id"`
	AppID          uint32     `json:"appId"`
	Domain         string     `json:"domain"`
	Model          string     `json:"model"`
	Operation      string     `json:"operation"`
	CID            string     `json:"cid,omitempty"`
	RID            string     `json:"rid,omitempty"`
	Type           int        `json:"type"`
	DataModifyTime int64      `json:"dataModifyTime"`
	EntityMeta     EntityMeta `json:"entityMeta"`
}

// InsertEligible reports whether this log requires a downstream insert
func (l ChangeLog) InsertEligible() bool {
	return l.Type == LogTypeUpsert || l.Type == LogTypeUpsertVariant
}

// PageInfo is the pagination block of a binlog_find reply
type PageInfo struct {
	CurrentPage int `json:"currentPage"`
	TotalPage   int `json:"totalPage"`
	PageSize    int `json:"pageSize,omitempty"`
	Total       int `json:"total,omitempty"`
}

// BinlogPage is one page of change logs from the feed
type BinlogPage struct {
	Page  PageInfo    `json:"page"`
	Items []ChangeLog `json:"items,omitempty"`
}

// TrainStatus is the delivery state MSS reports for one pushed train
type TrainStatus struct {
	TrainID      string `json:"trainId"`
	NotifyStatus string `json:"trainNotifyMss"`
}

// CompanyInfo is the nested company block of an organization
type CompanyInfo struct {
	CompanyID   string `json:"companyId" db:"companyId"`
	CompanyName string `json:"companyName" db:"companyName"`
}

// ContactInfo is the nested contact block shared by orgs and users
type ContactInfo struct {
	Phone   string `json:"phone" db:"phone"`
	Email   string `json:"email" db:"email"`
	Address string `json:"address" db:"address"`
}

// DepartmentInfo is the nested department block of an organization
type DepartmentInfo struct {
	DeptID   string `json:"deptId" db:"deptId"`
	DeptName string `json:"deptName" db:"deptName"`
	DeptType string `json:"deptType" db:"deptType"`
}

// Org is the canonical organization record written to d_telecom_org.
// The year/month/hitDate fields are stamped by the batch hooks, not by the
// gateway.
type Org struct {
	ID         string `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	ShortName  string `json:"shortName" db:"shortName"`
	Status     int    `json:"status" db:"status"`
	OrgType    string `json:"orgType" db:"orgType"`
	ParentID   string `json:"parentId" db:"parentId"`
	SortOrder  int    `json:"sortOrder" db:"sortOrder"`
	CreateTime int64  `json:"createTime" db:"createTime"`
	ModifyTime int64  `json:"modifyTime" db:"modifyTime"`

	Company    CompanyInfo    `json:"companyInfo" db:"companyInfo"`
	Contact    ContactInfo    `json:"contactInfo" db:"contactInfo"`
	Department DepartmentInfo `json:"departmentInfo" db:"departmentInfo"`

	Year     int    `json:"-" db:"year"`
	Month    int    `json:"-" db:"month"`
	InTime   int64  `json:"-" db:"inTime"`
	HitDate1 int64  `json:"-" db:"hitDate1"`
	HitDate  string `json:"-" db:"hitDate"`
}

// OrgTree is the hierarchy row written to d_telecom_org_tree. Ancestors is
// the ordered root-to-parent path.
type OrgTree struct {
	ID        string   `json:"id" db:"id"`
	Parent    string   `json:"parent" db:"parent"`
	Level     int      `json:"level" db:"level"`
	Ancestors []string `json:"ancestors" db:"-"`
	// Path is the ancestors list flattened for storage.
	Path string `json:"-" db:"path"`
}

// MssOrgMapping bridges the local org code to the MSS organization code
type MssOrgMapping struct {
	Code    string `json:"code" db:"code"`
	MssCode string `json:"mssCode" db:"mssCode"`
}

// MssOrg is one external representation of an organization keyed by hrCode
type MssOrg struct {
	ID     string `json:"id" db:"id"`
	HrCode string `json:"hrCode" db:"hrCode"`
	// MssCode is stamped from the mapping at completion; it is the delete
	// key for d_mss_org.
	MssCode  string `json:"-" db:"mssCode"`
	HrName   string `json:"hrName" db:"hrName"`
	ParentHr string `json:"parentHrCode" db:"parentHrCode"`
	OrgLevel string `json:"orgLevel" db:"orgLevel"`

	Year     int    `json:"-" db:"year"`
	Month    int    `json:"-" db:"month"`
	HitDate1 int64  `json:"-" db:"hitDate1"`
	HitDate  string `json:"-" db:"hitDate"`
}

// ArchivesInfo is the nested HR-archive block of a user
type ArchivesInfo struct {
	ArchiveID  string `json:"archiveId" db:"archiveId"`
	ArchiveOrg string `json:"archiveOrg" db:"archiveOrg"`
}

// UserExt carries the optional extension blocks of a user record
type UserExt struct {
	BaseStation   string `json:"baseStation" db:"baseStation"`
	JobInfo       string `json:"jobInfo" db:"jobInfo"`
	NameCard      string `json:"nameCard" db:"nameCard"`
	AuthorizeInfo string `json:"authorizeInfo" db:"authorizeInfo"`
}

// User is the canonical user record written to d_telecom_user
type User struct {
	ID         string `json:"id" db:"id"`
	Account    string `json:"account" db:"account"`
	Name       string `json:"name" db:"name"`
	Status     int    `json:"status" db:"status"`
	OrgID      string `json:"orgId" db:"orgId"`
	CreateTime int64  `json:"createTime" db:"createTime"`
	ModifyTime int64  `json:"modifyTime" db:"modifyTime"`

	Contact  ContactInfo  `json:"contactInfo" db:"contactInfo"`
	Archives ArchivesInfo `json:"archivesInfo" db:"archivesInfo"`
	Ext      UserExt      `json:"ext" db:"ext"`

	Year     int    `json:"-" db:"year"`
	Month    int    `json:"-" db:"month"`
	InTime   int64  `json:"-" db:"inTime"`
	HitDate1 int64  `json:"-" db:"hitDate1"`
	HitDate  string `json:"-" db:"hitDate"`
}

// MssUserMapping bridges the local uid to the MSS hrCode
type MssUserMapping struct {
	UID    string `json:"uid" db:"uid"`
	HrCode string `json:"hrCode" db:"hrCode"`
}

// MssUser is one candidate external user record for an hrCode. The resolver
// picks the minimum under (userStatus asc, jobType asc, hrJobType asc,
// time desc).
type MssUser struct {
	ID         string `json:"id" db:"id"`
	HrCode     string `json:"hrCode" db:"hrCode"`
	JobNumber  string `json:"jobNumber" db:"jobNumber"`
	UserStatus int    `json:"userStatus" db:"userStatus"`
	JobType    string `json:"jobType" db:"jobType"`
	HrJobType  string `json:"hrJobType" db:"hrJobType"`
	Time       int64  `json:"time" db:"time"`

	Year     int    `json:"-" db:"year"`
	Month    int    `json:"-" db:"month"`
	HitDate1 int64  `json:"-" db:"hitDate1"`
	HitDate  string `json:"-" db:"hitDate"`
}

// Less orders MssUser candidates: smallest userStatus, then smallest
// jobType, then smallest hrJobType, then the most recent time.
func (u MssUser) Less(o MssUser) bool {
	if u.UserStatus != o.UserStatus {
		return u.UserStatus < o.UserStatus
	}
	if u.JobType != o.JobType {
		return u.JobType < o.JobType
	}
	if u.HrJobType != o.HrJobType {
		return u.HrJobType < o.HrJobType
	}
	return u.Time > o.Time
}
