package httpx

import (
	"maps"
	"net/http"
	"slices"
	"strings"
)

// MethodMux chooses a handler based on the incoming HTTP method and
// answers anything else with a JSON 405 and an Allow header. HEAD is served
// by the GET handler unless one is registered for it.
func MethodMux(handlers map[string]http.Handler) http.Handler {
	handlers = maps.Clone(handlers)
	if get, ok := handlers[http.MethodGet]; ok {
		if _, ok := handlers[http.MethodHead]; !ok {
			handlers[http.MethodHead] = get
		}
	}

	allowed := slices.Sorted(maps.Keys(handlers))
	allow := strings.Join(allowed, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.Method]; ok {
			h.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		MethodNotAllowed(w, r)
	})
}
