package rpc

import (
	"fmt"
	"net/http"
	"strings"

	"metanode/storage/history"
)

const (
	exportCSV   = "csv"
	exportJSONL = "jsonl"
)

type historyQueryParams struct {
	Type       string  `json:"type,omitempty"`
	Address    string  `json:"address,omitempty"`
	Pool       *uint64 `json:"pool,omitempty"`
	FromSeq    uint64  `json:"fromSeq,omitempty"`
	FromHeight uint64  `json:"fromHeight,omitempty"`
	ToHeight   uint64  `json:"toHeight,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	Offset     int     `json:"offset,omitempty"`
	// Format is only read by history_export.
	Format string `json:"format,omitempty"`
}

func (p historyQueryParams) filter() (history.Filter, error) {
	f := history.Filter{
		Type:       strings.TrimSpace(p.Type),
		Pool:       p.Pool,
		FromSeq:    p.FromSeq,
		FromHeight: p.FromHeight,
		ToHeight:   p.ToHeight,
		Limit:      p.Limit,
		Offset:     p.Offset,
	}
	if p.Limit < 0 || p.Offset < 0 {
		return f, fmt.Errorf("limit and offset must not be negative")
	}
	if p.ToHeight > 0 && p.FromHeight > p.ToHeight {
		return f, fmt.Errorf("fromHeight %d after toHeight %d", p.FromHeight, p.ToHeight)
	}
	if strings.TrimSpace(p.Address) != "" {
		addr, err := parseAddress("address", p.Address)
		if err != nil {
			return f, err
		}
		f.Account = addr.String()
	}
	return f, nil
}

func (s *Server) queryHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) ([]history.Record, historyQueryParams, bool) {
	var params historyQueryParams
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeHistoryOff, "history index disabled", nil)
		return nil, params, false
	}
	if len(req.Params) > 0 && !decodeParams(w, req, &params) {
		return nil, params, false
	}
	filter, err := params.filter()
	if err != nil {
		invalidParam(w, req, err)
		return nil, params, false
	}
	records, err := s.history.Query(r.Context(), filter)
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return nil, params, false
	}
	return records, params, true
}

func (s *Server) handleHistoryQuery(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	records, _, ok := s.queryHistory(w, r, req)
	if !ok {
		return
	}
	out := make([]historyRecordResult, 0, len(records))
	for _, rec := range records {
		item, err := historyRecordFrom(rec)
		if err != nil {
			s.writeNodeError(w, req.ID, err)
			return
		}
		out = append(out, item)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleHistoryExport(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	records, params, ok := s.queryHistory(w, r, req)
	if !ok {
		return
	}
	format := strings.ToLower(strings.TrimSpace(params.Format))
	if format == "" {
		format = exportCSV
	}
	var (
		data     []byte
		checksum string
		err      error
	)
	switch format {
	case exportCSV:
		data, checksum, err = history.CSV(records)
	case exportJSONL:
		data, checksum, err = history.JSONL(records)
	default:
		invalidParam(w, req, fmt.Errorf("format must be %q or %q", exportCSV, exportJSONL))
		return
	}
	if err != nil {
		s.writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, exportResult{
		Format:   format,
		Records:  len(records),
		Checksum: checksum,
		Data:     string(data),
	})
}
