package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/reachpoint/reachpoint/internal/types"
)

// pathID extracts and validates the {id} path variable.
func pathID(r *http.Request) (string, error) {
	id := mux.Vars(r)["id"]
	if !types.ValidID(id) {
		return "", types.ErrInvalidID
	}
	return id, nil
}

// asDoc round-trips a struct through JSON into the patch document form the
// coalescer carries.
func asDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
