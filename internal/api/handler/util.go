package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayo6706/screening-settlement/internal/api/problem"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RespondJSON encodes data before touching the response so an encoding
// failure still yields a clean 500.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		zap.L().Error("encode response", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// RespondError writes an RFC 7807 error response. Short problem types are
// expanded against the problem base URL.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

type dbProblem struct {
	status      int
	problemType string
	message     string
}

// Postgres SQLSTATEs a settlement run can surface to an operator.
var dbProblems = map[string]dbProblem{
	"23505": {http.StatusConflict, "db/unique-violation", "a live payout already exists for this campaign"},
	"23514": {http.StatusConflict, "db/check-violation", "state transition rejected by the database"},
	"55P03": {http.StatusConflict, "db/lock-timeout", "rows are held by a concurrent settlement run"},
	"57014": {http.StatusServiceUnavailable, "db/query-canceled", "database query canceled"},
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}
	p, ok := dbProblems[pgErr.Code]
	if !ok {
		return 0, "", "", false
	}
	return p.status, p.problemType, p.message, true
}
