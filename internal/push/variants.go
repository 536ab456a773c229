// Package push implements the archival push engine: it loads materialized
// rows from the OLTP store, posts them to MSS as tagged envelopes with
// throttle-aware retry, and reconciles per-row status back to ClickHouse
// and MySQL.
package push

// Variant describes one push task family. The "sc" forms push the same
// tables through their dedicated gateway services.
type Variant struct {
	Name        string
	Service     string
	EnvelopeKey string
	// Table and IDColumn locate the source rows and the MySQL
	// reconciliation target.
	Table    string
	IDColumn string
	// CHTable and CHIDColumn locate the ClickHouse reconciliation target.
	CHTable    string
	CHIDColumn string
	// CarryMessage: lecturer rows record the MSS error text in
	// trainNotifyMssMessage; the other variants write NULL.
	CarryMessage bool
}

// Variants lists every push task family in execution order
var Variants = []Variant{
	{
		Name:        "training",
		Service:     "mss_training_push",
		EnvelopeKey: "trainingData",
		Table:       "NU_trainSourceData_ztk",
		IDColumn:    "trainId",
		CHTable:     "DXXY_LOCAL.TRAIN_SOURCE_DATA_ZTK_ALL",
		CHIDColumn:  "T_TRAINID",
	},
	{
		Name:        "lecturer",
		Service:     "mss_lecturer_push",
		EnvelopeKey: "lecturerData",
		Table:       "NU_trainSourceData_ztk",
		IDColumn:    "trainId",
		CHTable:     "DXXY_LOCAL.TRAIN_SOURCE_DATA_ZTK_ALL",
		CHIDColumn:  "T_TRAINID",
		CarryMessage: true,
	},
	{
		Name:        "class",
		Service:     "mss_class_push",
		EnvelopeKey: "classData",
		Table:       "NU_TRAINCOURSESOURCEDATA_ZTK",
		IDColumn:    "id",
		CHTable:     "DXXY_LOCAL.TRAIN_COURSE_DATA_ZTK_ALL",
		CHIDColumn:  "id",
	},
	{
		Name:        "archive",
		Service:     "mss_archive_push",
		EnvelopeKey: "archiveData",
		Table:       "nu_trainusersourcedata_ztk",
		IDColumn:    "id",
		CHTable:     "DXXY_LOCAL.TRAIN_USER_DATA_ZTK_ALL",
		CHIDColumn:  "id",
	},
	{
		Name:        "training_sc",
		Service:     "mss_training_push_sc",
		EnvelopeKey: "trainingData",
		Table:       "NU_trainSourceData_ztk",
		IDColumn:    "trainId",
		CHTable:     "DXXY_LOCAL.TRAIN_SOURCE_DATA_ZTK_ALL",
		CHIDColumn:  "T_TRAINID",
	},
	{
		Name:        "lecturer_sc",
		Service:     "mss_lecturer_push_sc",
		EnvelopeKey: "lecturerData",
		Table:       "NU_trainSourceData_ztk",
		IDColumn:    "trainId",
		CHTable:     "DXXY_LOCAL.TRAIN_SOURCE_DATA_ZTK_ALL",
		CHIDColumn:  "T_TRAINID",
		CarryMessage: true,
	},
	{
		Name:        "class_sc",
		Service:     "mss_class_push_sc",
		EnvelopeKey: "classData",
		Table:       "NU_TRAINCOURSESOURCEDATA_ZTK",
		IDColumn:    "id",
		CHTable:     "DXXY_LOCAL.TRAIN_COURSE_DATA_ZTK_ALL",
		CHIDColumn:  "id",
	},
	{
		Name:        "archive_sc",
		Service:     "mss_archive_push_sc",
		EnvelopeKey: "archiveData",
		Table:       "nu_trainusersourcedata_ztk",
		IDColumn:    "id",
		CHTable:     "DXXY_LOCAL.TRAIN_USER_DATA_ZTK_ALL",
		CHIDColumn:  "id",
	},
}
