package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dxxy/mss-sync/internal/gateway"
	"github.com/rs/zerolog/log"
)

// SyncTrigger schedules an immediate sync over synthesized upsert logs
type SyncTrigger interface {
	RunSynthetic(ctx context.Context, kind gateway.BinlogKind, ids []string) error
}

// PushTrigger drives the push engine over a date range or an id set
type PushTrigger interface {
	RunByDateRange(ctx context.Context, begin, end string) error
	RunByTrainIDs(ctx context.Context, ids []string) error
}

const acceptedMsg = "accepted, check logs"

type syncReq struct {
	DataType string   `json:"dataType"`
	IDs      []string `json:"ids"`
}

// TriggerSync handles POST /binlog/sync
func (s *Server) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	var kind gateway.BinlogKind
	switch req.DataType {
	case "org":
		kind = gateway.KindOrg
	case "user":
		kind = gateway.KindUser
	default:
		writeError(w, http.StatusBadRequest, `dataType must be "org" or "user"`)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}

	// Detached from the request: the run outlives the response.
	go func() {
		if err := s.Sync.RunSynthetic(context.Background(), kind, req.IDs); err != nil {
			log.Error().Err(err).Str("dataType", req.DataType).Msg("manual sync failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": acceptedMsg})
}

type pushReq struct {
	BeginDate string   `json:"beginDate"`
	EndDate   string   `json:"endDate"`
	TrainIDs  []string `json:"trainIds"`
}

// TriggerPush handles POST /pxb/pushByDate. Exactly one of the date form
// and the id form must be present.
func (s *Server) TriggerPush(w http.ResponseWriter, r *http.Request) {
	var req pushReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	byDate := req.BeginDate != "" || req.EndDate != ""
	byIDs := len(req.TrainIDs) > 0
	if byDate == byIDs {
		writeError(w, http.StatusBadRequest, "provide either beginDate/endDate or trainIds, not both")
		return
	}

	if byIDs {
		go func() {
			if err := s.Push.RunByTrainIDs(context.Background(), req.TrainIDs); err != nil {
				log.Error().Err(err).Msg("manual push by train ids failed")
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"message": acceptedMsg})
		return
	}

	begin, end := req.BeginDate, req.EndDate
	if begin == "" {
		writeError(w, http.StatusBadRequest, "beginDate is required for the date form")
		return
	}
	if end == "" {
		end = begin
	}

	go func() {
		if err := s.Push.RunByDateRange(context.Background(), begin, end); err != nil {
			log.Error().Err(err).Str("beginDate", begin).Str("endDate", end).Msg("manual push by date failed")
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": acceptedMsg})
}
