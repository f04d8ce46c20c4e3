package proxy

import (
	"fmt"
	"html"
	"net/http"
)

// denialTemplate renders the 403 body. The rule id is never included in
// the body, per spec §6 ("no sensitive internals leaked").
const denialTemplate = `<!DOCTYPE html>
<html>
<head><title>Request Blocked</title></head>
<body>
<h1>Request Blocked</h1>
<p>%s</p>
</body>
</html>`

// writeDenial renders the 403 HTML denial response with reason interpolated.
func writeDenial(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	fmt.Fprintf(w, denialTemplate, html.EscapeString(reason))
}
