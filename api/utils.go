package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

// NormalizeDate coerces the date formats seen in finance exports to
// ISO. Unparseable input yields the empty string, never an error; rule
// evaluation treats that as "does not trigger".
func NormalizeDate(dateStr string) string {
	s := strings.TrimSpace(dateStr)
	if s == "" {
		return ""
	}
	layouts := []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "20060102",
		"02-01-2006", "01/02/2006", "2 Jan 2006", "02-Jan-2006",
		time.RFC3339,
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// Error response helper
func RespondWithError(w http.ResponseWriter, status int, errMsg string) {
	log.Println("[ERROR]", errMsg)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errMsg,
	})
}

// RespondWithPayload sends a consistent JSON success envelope with an
// arbitrary payload merged in at the top level.
func RespondWithPayload(w http.ResponseWriter, payload map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{"success": true}
	for k, v := range payload {
		resp[k] = v
	}
	json.NewEncoder(w).Encode(resp)
}
