package handlers

import (
	"net/http"

	digestpkg "github.com/distribution-core/registry/digest"
	"github.com/distribution-core/registry/metrics"
	"github.com/distribution-core/registry/notifications"
	"github.com/distribution-core/registry/registry/api/errcode"
	"github.com/distribution-core/registry/registry/auth"
	"github.com/distribution-core/registry/registry/storage"
)

// serveBlobUploadStart begins a resumable upload session, or, when the
// request carries "mount"/"from" query parameters and the named blob
// already exists (content addressing makes "exists" repo-independent),
// completes immediately by mounting the existing content into ctx.Repo
// without staging anything — grounded on the teacher's
// createBlobMountOption/ErrBlobMounted short-circuit.
func (app *App) serveBlobUploadStart(ctx *Context, w http.ResponseWriter, r *http.Request) {
	if mounted := app.tryMountBlob(ctx, w, r); mounted {
		return
	}

	upload := app.uploads.Create(r.Context(), ctx.Repo)
	metrics.ActiveUploads.Inc(1)
	app.writeUploadAccepted(w, upload)
}

// tryMountBlob reports whether it fully handled the request by mounting an
// existing blob from another repository. Any failure (missing params,
// unparsable digest, blob not found, source repo not pull-authorized) falls
// through to a normal upload session rather than erroring the request.
func (app *App) tryMountBlob(ctx *Context, w http.ResponseWriter, r *http.Request) bool {
	fromRepo := r.URL.Query().Get("from")
	mountDigest := r.URL.Query().Get("mount")
	if fromRepo == "" || mountDigest == "" {
		return false
	}

	dgst, err := digestpkg.Parse(mountDigest)
	if err != nil {
		return false
	}

	if app.gate.Authorize(ctx.Principal, fromRepo, auth.ActionPull) != nil {
		return false
	}

	desc, err := app.blobs.Stat(r.Context(), dgst)
	if err != nil {
		return false
	}

	location, _ := app.urlBuilder.BuildBlobURL(ctx.Repo, desc.Digest.String())
	w.Header().Set("Location", location)
	w.Header().Set("Docker-Content-Digest", desc.Digest.String())
	w.WriteHeader(http.StatusCreated)

	app.notify(r.Context(), func(l notifications.Listener) error {
		return l.BlobMounted(r.Context(), ctx.Repo, desc, fromRepo)
	})

	return true
}

func (app *App) serveBlobUploadChunk(ctx *Context, w http.ResponseWriter, r *http.Request) {
	upload, ok := app.getUpload(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	start, _, err := parseContentRange(r.Header.Get("Content-Range"))
	if err != nil {
		// No Content-Range means append at the session's current length.
		start = upload.Size()
	}

	n, err := upload.Append(r.Context(), start, r.Body)
	if err != nil {
		if rangeErr, ok := err.(storage.ErrRangeInvalid); ok {
			endRange := upload.Size()
			if endRange > 0 {
				endRange--
			}
			setRangeHeader(w, 0, endRange)
			errcode.ServeJSON(w, errcode.ErrorCodeRangeInvalid.WithDetail(rangeErr.Error()))
			return
		}
		if tooLargeErr, ok := err.(storage.ErrBlobTooLarge); ok {
			errcode.ServeJSON(w, errcode.ErrorCodeSizeInvalid.WithDetail(tooLargeErr.Error()))
			return
		}
		errcode.ServeJSON(w, errcode.ErrorCodeBlobUploadInvalid.WithDetail(err.Error()))
		return
	}
	metrics.UploadBytesTotal.Inc(float64(n))

	app.writeUploadAccepted(w, upload)
}

func (app *App) serveBlobUploadFinalize(ctx *Context, w http.ResponseWriter, r *http.Request) {
	upload, ok := app.getUpload(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	if r.ContentLength > 0 {
		start, _, err := parseContentRange(r.Header.Get("Content-Range"))
		if err != nil {
			start = upload.Size()
		}
		n, err := upload.Append(r.Context(), start, r.Body)
		if err != nil {
			if tooLargeErr, ok := err.(storage.ErrBlobTooLarge); ok {
				errcode.ServeJSON(w, errcode.ErrorCodeSizeInvalid.WithDetail(tooLargeErr.Error()))
				return
			}
			errcode.ServeJSON(w, errcode.ErrorCodeBlobUploadInvalid.WithDetail(err.Error()))
			return
		}
		metrics.UploadBytesTotal.Inc(float64(n))
	}

	expected, err := digestpkg.Parse(r.URL.Query().Get("digest"))
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeDigestInvalid.WithDetail(err.Error()))
		return
	}

	desc, err := upload.Commit(r.Context(), expected)
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeDigestInvalid.WithDetail(err.Error()))
		return
	}
	app.uploads.Remove(upload.ID)
	metrics.ActiveUploads.Dec(1)

	location, _ := app.urlBuilder.BuildBlobURL(ctx.Repo, desc.Digest.String())
	w.Header().Set("Location", location)
	w.Header().Set("Docker-Content-Digest", desc.Digest.String())
	w.WriteHeader(http.StatusCreated)

	app.notify(r.Context(), func(l notifications.Listener) error {
		return l.BlobPushed(r.Context(), ctx.Repo, desc)
	})
}

func (app *App) serveBlobUploadStatus(ctx *Context, w http.ResponseWriter, r *http.Request) {
	upload, ok := app.getUpload(w, r)
	if !ok {
		return
	}
	app.writeUploadAccepted(w, upload)
}

func (app *App) serveBlobUploadCancel(ctx *Context, w http.ResponseWriter, r *http.Request) {
	upload, ok := app.getUpload(w, r)
	if !ok {
		return
	}

	if err := upload.Cancel(r.Context()); err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeUnknown.WithDetail(err.Error()))
		return
	}
	app.uploads.Remove(upload.ID)
	metrics.ActiveUploads.Dec(1)
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) getUpload(w http.ResponseWriter, r *http.Request) (*storage.Upload, bool) {
	upload, err := app.uploads.Get(uploadUUID(r))
	if err != nil {
		errcode.ServeJSON(w, errcode.ErrorCodeBlobUploadUnknown.WithDetail(uploadUUID(r)))
		return nil, false
	}
	return upload, true
}

func (app *App) writeUploadAccepted(w http.ResponseWriter, upload *storage.Upload) {
	location, _ := app.urlBuilder.BuildBlobUploadChunkURL(upload.Repository, upload.ID, nil)
	w.Header().Set("Location", location)
	w.Header().Set("Docker-Upload-UUID", upload.ID)
	endRange := upload.Size()
	if endRange > 0 {
		endRange--
	}
	setRangeHeader(w, 0, endRange)
	w.WriteHeader(http.StatusAccepted)
}
