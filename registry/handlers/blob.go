package handlers

import (
	"io"
	"net/http"
	"strconv"

	digestpkg "github.com/distribution-core/registry/digest"
	"github.com/distribution-core/registry/metrics"
	"github.com/distribution-core/registry/notifications"
	"github.com/distribution-core/registry/registry/api/errcode"
	storagedriver "github.com/distribution-core/registry/registry/storage/driver"
)

func (app *App) serveBlobGet(ctx *Context, w http.ResponseWriter, r *http.Request) {
	dgst, err := digestpkg.Parse(digestVar(r))
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeDigestInvalid.WithDetail(err.Error()))
		return
	}

	rc, desc, err := app.blobs.Open(r.Context(), dgst)
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeBlobUnknown.WithDetail(dgst.String()))
		return
	}
	defer rc.Close()

	w.Header().Set("Docker-Content-Digest", desc.Digest.String())
	w.Header().Set("Content-Length", strconv.FormatInt(desc.Size, 10))
	w.Header().Set("Content-Type", desc.MediaType)

	if r.Method == http.MethodHead {
		return
	}

	app.notify(r.Context(), func(l notifications.Listener) error {
		return l.BlobPulled(r.Context(), ctx.Repo, desc)
	})

	n, _ := io.Copy(w, rc)
	metrics.BlobBytesTotal.Inc(float64(n))
}

func (app *App) serveBlobDelete(ctx *Context, w http.ResponseWriter, r *http.Request) {
	dgst, err := digestpkg.Parse(digestVar(r))
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeDigestInvalid.WithDetail(err.Error()))
		return
	}

	if err := app.blobs.Delete(r.Context(), dgst); err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); ok {
			errcode.ServeJSON(w, errcode.ErrorCodeBlobUnknown.WithDetail(dgst.String()))
			return
		}
		errcode.ServeJSON(w, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}

	app.notify(r.Context(), func(l notifications.Listener) error {
		return l.BlobDeleted(r.Context(), ctx.Repo, dgst)
	})

	w.WriteHeader(http.StatusAccepted)
}
