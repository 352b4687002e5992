package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/dbkit/internal/condition"
	"github.com/koustreak/dbkit/internal/errs"
	"github.com/koustreak/dbkit/internal/logger"
	"github.com/koustreak/dbkit/internal/querybuilder"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// response is the envelope every endpoint returns.
type response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSchemas(w http.ResponseWriter, r *http.Request) {
	names, err := s.schema.SchemaNames(r.Context(), refresh(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	names, err := s.schema.TableNames(r.Context(), r.URL.Query().Get("schema"), refresh(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) listViews(w http.ResponseWriter, r *http.Request) {
	names, err := s.schema.ViewNames(r.Context(), r.URL.Query().Get("schema"), refresh(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, names)
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	name := tableParam(r)
	ts, err := s.schema.TableSchema(r.Context(), name, refresh(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ts == nil {
		s.writeError(w, r, errs.Newf(errs.ErrKindNotFound, "table %q not found", name))
		return
	}
	s.writeJSON(w, http.StatusOK, ts)
}

func (s *Server) getTableMetadata(w http.ResponseWriter, r *http.Request) {
	var (
		ctx     = r.Context()
		name    = tableParam(r)
		force   = refresh(r)
		payload any
		err     error
	)
	switch kind := chi.URLParam(r, "metadata"); kind {
	case "primary-key":
		payload, err = s.schema.TablePrimaryKey(ctx, name, force)
	case "foreign-keys":
		payload, err = s.schema.TableForeignKeys(ctx, name, force)
	case "indexes":
		payload, err = s.schema.TableIndexes(ctx, name, force)
	case "uniques":
		payload, err = s.schema.TableUniques(ctx, name, force)
	case "checks":
		payload, err = s.schema.TableChecks(ctx, name, force)
	case "default-values":
		payload, err = s.schema.TableDefaultValues(ctx, name, force)
	default:
		err = errs.Newf(errs.ErrKindNotFound, "unknown table metadata %q", kind)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) refreshTable(w http.ResponseWriter, r *http.Request) {
	s.schema.RefreshTableSchema(tableParam(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshAll(w http.ResponseWriter, _ *http.Request) {
	s.schema.Refresh()
	w.WriteHeader(http.StatusNoContent)
}

// renderRequest is the body of POST /conditions/render.
type renderRequest struct {
	Condition json.RawMessage `json:"condition"`
}

func (s *Server) renderCondition(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	cond, err := condition.DecodeJSON(req.Condition)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	frag, err := s.builder.Build(cond)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, frag)
}

// selectRequest is the body of POST /tables/{table}/select.
type selectRequest struct {
	Columns []string        `json:"columns"`
	Where   json.RawMessage `json:"where"`
	OrderBy []struct {
		Column string `json:"column"`
		Desc   bool   `json:"desc"`
	} `json:"order_by"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// selectResponse is a rendered statement ready for database.DB.Query.
type selectResponse struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args"`
}

func (s *Server) renderSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	where, err := condition.DecodeJSON(req.Where)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	table := s.schema.RawTableName(tableParam(r))
	q := querybuilder.Select(table, s.builder.Dialect()).
		Columns(req.Columns...).
		Where(where)
	if req.Limit > 0 {
		q.Limit(req.Limit)
	}
	if req.Offset > 0 {
		q.Offset(req.Offset)
	}
	for _, o := range req.OrderBy {
		dir := querybuilder.Asc
		if o.Desc {
			dir = querybuilder.Desc
		}
		q.OrderBy(o.Column, dir)
	}

	sql, args, err := q.Build()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, selectResponse{SQL: sql, Args: args})
}

// decodeJSON reads one JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.ErrKindInvalidArgument, "invalid request body", err)
	}
	return nil
}

// tableParam returns the unescaped {table} segment. chi matches against the
// raw path when the request carries one.
func tableParam(r *http.Request) string {
	name := chi.URLParam(r, "table")
	if u, err := url.PathUnescape(name); err == nil {
		return u
	}
	return name
}

func refresh(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return ok
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	s.write(w, status, response{Success: true, Data: data})
}

// writeError maps an *errs.Error kind to an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.ErrKindInvalidArgument:
			status, code = http.StatusBadRequest, "invalid_argument"
		case errs.ErrKindNotFound:
			status, code = http.StatusNotFound, "not_found"
		case errs.ErrKindNotSupported:
			status, code = http.StatusNotImplemented, "not_supported"
		case errs.ErrKindPermissionDenied:
			status, code = http.StatusForbidden, "permission_denied"
		case errs.ErrKindTimeout:
			status, code = http.StatusGatewayTimeout, "timeout"
		case errs.ErrKindConnectionFailed:
			status, code = http.StatusServiceUnavailable, "connection_failed"
		}
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).ErrorWith("request failed", err, map[string]any{"path": r.URL.Path})
	}
	s.write(w, status, response{Error: &apiError{Code: code, Message: err.Error()}})
}

func (s *Server) write(w http.ResponseWriter, status int, body response) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		s.log.ErrorWith("failed to encode response", err, nil)
		http.Error(w, `{"success":false}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
