package render

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethshop/shop-indexer/logging"
)

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	enc := json.NewEncoder(w)

	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		enc.SetIndent("", "  ")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := enc.Encode(res); err != nil {
		logger := logging.LoggerFromContext(r.Context())
		logger.WithError(err).Error("failed to marshal JSON result")
	}
}
