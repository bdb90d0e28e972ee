package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Tarbo/litmus-platform/apperr"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError translates a typed apperr.Error (or a bare error) to the
// documented {error:{type,message}} envelope and status code.
func writeError(w http.ResponseWriter, err error) {
	aerr, ok := apperr.As(err)
	if !ok {
		aerr = apperr.Internalf("%s", err.Error())
	}
	writeJSON(w, apperr.StatusCode(aerr.ErrType), map[string]interface{}{
		"error": map[string]interface{}{
			"type":    aerr.ErrType,
			"message": aerr.Message,
		},
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidArgumentf("invalid request body: %s", err.Error())
	}
	return nil
}
