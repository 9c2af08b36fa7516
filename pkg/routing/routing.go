package routing

import (
	"net/http"
	"path"
	"strings"
)

// NormalizedServeMux wraps http.ServeMux and cleans request paths containing
// duplicate slashes before routing. Some host-side HTTP clients produce paths
// like //v1/models/load which the standard mux would redirect.
type NormalizedServeMux struct {
	*http.ServeMux
}

func NewNormalizedServeMux() *NormalizedServeMux {
	return &NormalizedServeMux{http.NewServeMux()}
}

func (nm *NormalizedServeMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.URL.Path, "//") {
		r.URL.Path = path.Clean(r.URL.Path)
	}

	nm.ServeMux.ServeHTTP(w, r)
}
