package gate

import (
	"encoding/json"
	"net/http"
)

// Middleware wraps next so priced routes require payment.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.decide(r)
		if d.status != 0 {
			writeJSON(w, d.status, d.body)
			return
		}
		if d.payment != nil {
			r = r.WithContext(withPayment(r.Context(), d.payment))
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
