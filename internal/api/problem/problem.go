package problem

import (
	"encoding/json"
	"net/http"
)

const (
	contentType = "application/problem+json"
	baseTypeURL = "https://errors.screening-settlement.dev/"
	traceHeader = "X-Trace-ID"
)

// Details represents RFC 7807 Problem Details.
type Details struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
	TraceID  string `json:"trace_id,omitempty"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends an RFC 7807 error. The trace id is taken from the response
// header set by the trace middleware, falling back to the request header.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	d := Details{
		Type:    problemType,
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: w.Header().Get(traceHeader),
	}
	if r != nil {
		d.Instance = r.URL.Path
		if d.TraceID == "" {
			d.TraceID = r.Header.Get(traceHeader)
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(d)
}
