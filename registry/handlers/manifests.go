package handlers

import (
	"io"
	"net/http"

	"github.com/distribution-core/registry/registry/api/errcode"
	"github.com/distribution-core/registry/registry/manifestservice"
)

func (app *App) serveManifestGet(ctx *Context, w http.ResponseWriter, r *http.Request) {
	accept := acceptedMediaTypes(r)

	res, err := app.manifests.GetManifest(r.Context(), ctx.Repo, reference(r), accept)
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeManifestUnknown.WithDetail(reference(r)))
		return
	}

	w.Header().Set("Content-Type", res.MediaType)
	w.Header().Set("Docker-Content-Digest", res.Digest.String())

	if r.Method == http.MethodHead {
		return
	}
	w.Write(res.Body)
}

func (app *App) serveManifestPut(ctx *Context, w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeManifestInvalid.WithDetail(err.Error()))
		return
	}

	mediaType := r.Header.Get("Content-Type")
	dgst, err := app.manifests.PutManifest(r.Context(), ctx.Repo, reference(r), mediaType, body)
	if err != nil {
		writeManifestPutError(w, err)
		return
	}

	location, _ := app.urlBuilder.BuildManifestURL(ctx.Repo, dgst.String())
	w.Header().Set("Location", location)
	w.Header().Set("Docker-Content-Digest", dgst.String())
	w.WriteHeader(http.StatusCreated)
}

func writeManifestPutError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case manifestservice.ErrManifestTooLarge:
		errcode.ServeJSON(w, errcode.ErrorCodeSizeInvalid.WithDetail(e.Error()))
	case manifestservice.ErrManifestInvalid:
		errcode.ServeJSON(w, errcode.ErrorCodeManifestInvalid.WithDetail(e.Error()))
	case manifestservice.ErrManifestBlobUnknown:
		missing := make([]string, 0, len(e.Missing))
		for _, d := range e.Missing {
			missing = append(missing, d.String())
		}
		errcode.ServeJSON(w, errcode.ErrorCodeManifestBlobUnknown.WithDetail(missing))
	default:
		errcode.ServeJSON(w, errcode.ErrorCodeManifestInvalid.WithDetail(err.Error()))
	}
}

func (app *App) serveManifestDelete(ctx *Context, w http.ResponseWriter, r *http.Request) {
	if err := app.manifests.DeleteManifest(r.Context(), ctx.Repo, reference(r)); err != nil {
		if _, ok := err.(manifestservice.ErrDeleteRequiresDigest); ok {
			errcode.ServeJSON(w, errcode.ErrorCodeUnsupported.WithDetail(err.Error()))
			return
		}
		errcode.ServeJSON(w, errcode.ErrorCodeManifestUnknown.WithDetail(reference(r)))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
