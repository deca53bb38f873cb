package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/distribution-core/registry/registry/api/errcode"
)

// paginationParams reads "n" and "last" from the request's query string, as
// spec §4.G's pagination model and §6.2's keyset pages describe.
func paginationParams(r *http.Request) (n int, last string) {
	last = r.URL.Query().Get("last")
	if raw := r.URL.Query().Get("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return n, last
}

func setPaginationLink(w http.ResponseWriter, r *http.Request, n int, next string) {
	if next == "" {
		return
	}
	values := url.Values{}
	values.Set("n", strconv.Itoa(n))
	values.Set("last", next)
	w.Header().Set("Link", "<"+r.URL.Path+"?"+values.Encode()+">; rel=\"next\"")
}

type tagsListResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

func (app *App) serveTags(ctx *Context, w http.ResponseWriter, r *http.Request) {
	n, last := paginationParams(r)

	page, err := app.index.ListTags(r.Context(), ctx.Repo, last, n)
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeNameUnknown.WithDetail(ctx.Repo))
		return
	}

	if page.More && len(page.Names) > 0 {
		setPaginationLink(w, r, n, page.Names[len(page.Names)-1])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tagsListResponse{Name: ctx.Repo, Tags: page.Names})
}
