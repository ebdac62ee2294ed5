package api

import (
    "encoding/json"
    "net/http"
    "time"

    "reliefmap/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    st := s.Places.GroupedState()
    var updated string
    if !st.UpdatedAt.IsZero() {
        updated = st.UpdatedAt.UTC().Format(time.RFC3339)
    }
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "PORT":              s.Config.Port,
            "API_BASE_URL":      s.Config.APIBaseURL,
            "PLACES_STATUS":     s.Config.Places.Status,
            "PLACES_STALE_AFTER": s.Config.Places.StaleAfter.String(),
            "FEEDS":             s.Feeds.Names(),
            "HAS_DATABASE_URL":  s.Config.DatabaseURL != "",
            "HAS_REDIS_URL":     s.Config.RedisURL != "",
        },
        "places": map[string]any{
            "cached":     st.HasData,
            "stale":      st.Stale,
            "fetching":   st.Fetching,
            "updated_at": updated,
            "count":      len(st.Data.Flat()),
            "error":      errString(st.Err),
        },
        "ws_clients": s.clients.Load(),
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(info)
}
