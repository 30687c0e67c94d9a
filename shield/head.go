package shield

import "net/http"

// HeadToGet rewrites HEAD requests to GET before routing, so endpoints
// registered only for GET answer 200 instead of 405. net/http drops the
// response body for HEAD on its own.
func HeadToGet(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}
