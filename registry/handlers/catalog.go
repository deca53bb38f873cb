package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/distribution-core/registry/registry/api/errcode"
)

type catalogResponse struct {
	Repositories []string `json:"repositories"`
}

func (app *App) serveCatalog(ctx *Context, w http.ResponseWriter, r *http.Request) {
	n, last := paginationParams(r)

	page, err := app.index.ListRepositories(r.Context(), last, n)
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	if page.More && len(page.Names) > 0 {
		setPaginationLink(w, r, n, page.Names[len(page.Names)-1])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(catalogResponse{Repositories: page.Names})
}
