package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/tabula/internal/cache"
	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/fieldspec"
	"github.com/koustreak/tabula/internal/query"
	"github.com/koustreak/tabula/internal/validation"
)

// maxBodySize caps record payloads.
const maxBodySize = 1 << 20

// reserved query parameters of the row listing; every other parameter is
// an equality filter.
var reserved = map[string]bool{"limit": true, "offset": true, "order_by": true, "desc": true}

// FieldResponse is a field spec with its relation options resolved.
type FieldResponse struct {
	fieldspec.FieldSpec
	Options      []fieldspec.Option `json:"options,omitempty"`
	OptionsError string             `json:"options_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"tables": s.registry.Tables()})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.registry.GetSchema(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, schema)
}

// handleFields builds the form for a table. Query parameters: mode
// (edit|display), parent_fk, prefix and required.
func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	schema, err := s.registry.GetSchema(ctx, chi.URLParam(r, "table"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	q := r.URL.Query()
	opts := fieldspec.BuildOptions{
		Mode:             fieldspec.ParseMode(q.Get("mode")),
		ParentForeignKey: q.Get("parent_fk"),
	}
	if v := q.Get("required"); v != "" {
		req, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, r, errs.Newf(errs.ErrKindInvalidInput, "required must be a boolean, got %q", v))
			return
		}
		opts.Required = req
	}

	specs := s.fields.BuildAll(ctx, schema, q.Get("prefix"), opts)
	out := make([]FieldResponse, len(specs))
	for i, spec := range specs {
		out[i] = FieldResponse{FieldSpec: spec}
		if spec.Options == nil {
			continue
		}
		options, err := spec.Options.Wait(ctx)
		if err != nil {
			out[i].OptionsError = err.Error()
			continue
		}
		out[i].Options = options
	}
	respondJSON(w, http.StatusOK, map[string]any{"table": schema.Table, "fields": out})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	options, err := s.fields.Options(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"options": options})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	schema, err := s.registry.GetSchema(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := decodeRecord(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	problems := validation.Validate(schema, rec)
	respondJSON(w, http.StatusOK, map[string]any{"valid": problems.Valid(), "errors": problems})
}

func (s *Server) handleListRows(w http.ResponseWriter, r *http.Request) {
	lq, err := parseListQuery(r.URL.Query())
	if err != nil {
		respondError(w, r, err)
		return
	}
	rs, err := s.entities.List(r.Context(), chi.URLParam(r, "table"), lq)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"columns": rs.Columns, "records": rs.Records})
}

func (s *Server) handleCreateRow(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out, problems, err := s.entities.Create(r.Context(), chi.URLParam(r, "table"), rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !problems.Valid() {
		respondInvalid(w, problems)
		return
	}
	respondJSON(w, http.StatusCreated, out)
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	rec, err := s.entities.Get(r.Context(), chi.URLParam(r, "table"), parseScalar(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	rec, err := decodeRecord(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	n, problems, err := s.entities.Update(r.Context(), chi.URLParam(r, "table"), parseScalar(chi.URLParam(r, "id")), rec)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !problems.Valid() {
		respondInvalid(w, problems)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	n, err := s.entities.Delete(r.Context(), chi.URLParam(r, "table"), parseScalar(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	rows, lists := s.entities.CacheStats()
	respondJSON(w, http.StatusOK, map[string]cache.Stats{
		"schemas": s.registry.CacheStats(),
		"options": s.fields.CacheStats(),
		"rows":    rows,
		"lists":   lists,
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.registry.ClearAll(r.Context())
	s.fields.ClearOptions()
	s.entities.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearSchema(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	s.registry.ClearCache(r.Context(), table)
	s.fields.InvalidateOptions(table)
	s.entities.Invalidate(table)
	w.WriteHeader(http.StatusNoContent)
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (query.Record, error) {
	var rec query.Record
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&rec); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "request body must be a JSON object", err)
	}
	if rec == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "request body must be a JSON object")
	}
	return rec, nil
}

func parseListQuery(q url.Values) (cache.ListQuery, error) {
	lq := cache.ListQuery{OrderBy: q.Get("order_by")}

	var err error
	if v := q.Get("limit"); v != "" {
		if lq.Limit, err = strconv.Atoi(v); err != nil {
			return lq, errs.Newf(errs.ErrKindInvalidInput, "limit must be an integer, got %q", v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if lq.Offset, err = strconv.Atoi(v); err != nil {
			return lq, errs.Newf(errs.ErrKindInvalidInput, "offset must be an integer, got %q", v)
		}
	}
	if v := q.Get("desc"); v != "" {
		if lq.Desc, err = strconv.ParseBool(v); err != nil {
			return lq, errs.Newf(errs.ErrKindInvalidInput, "desc must be a boolean, got %q", v)
		}
	}

	for k, vs := range q {
		if reserved[k] || len(vs) == 0 {
			continue
		}
		if lq.Filters == nil {
			lq.Filters = make(map[string]any)
		}
		lq.Filters[k] = parseScalar(vs[0])
	}
	return lq, nil
}

// parseScalar turns a path or query value into an int64 when it is a whole
// number, and leaves it a string otherwise.
func parseScalar(s string) any {
	if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return n
	}
	return s
}
