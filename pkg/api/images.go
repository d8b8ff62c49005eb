package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"forum/pkg/logger"
)

const (
	maxImageSize    = 5 << 20
	maxUploadSize   = 6 * maxImageSize
	maxPostImages   = 5
	sniffLen        = 512
	multipartMemory = 8 << 20
)

var errNotImage = errors.New("file is not an image")

func (api *API) imageHandler(w http.ResponseWriter, r *http.Request) {
	sID := logger.Shorten(logger.RequestID(r.Context()))

	data, err := api.db.Image(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		api.storageError(w, err, "imageHandler", sID)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// saveUploadedImages stores up to limit image files sent under the multipart field and returns their
// ids. On failure the request is answered and false is returned; images stored before the failure
// are removed again.
func (api *API) saveUploadedImages(w http.ResponseWriter, r *http.Request, field string, limit int, handler, sID string) ([]string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httpError(w, "Invalid multipart form", http.StatusBadRequest)
		log.Debugf("[%s][%s] failed to parse multipart form: %v", handler, sID, err)
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		httpError(w, fmt.Sprintf("No files in field %q", field), http.StatusBadRequest)
		return nil, false
	}
	if len(files) > limit {
		httpError(w, fmt.Sprintf("At most %d files allowed", limit), http.StatusBadRequest)
		return nil, false
	}

	ids := make([]string, 0, len(files))
	for _, fh := range files {
		data, err := readImage(fh)
		if err != nil {
			api.discardImages(r, ids, handler, sID)
			httpError(w, fmt.Sprintf("%s: %v", fh.Filename, err), http.StatusBadRequest)
			log.Debugf("[%s][%s] rejected upload %s: %v", handler, sID, fh.Filename, err)
			return nil, false
		}

		id, err := api.db.SaveImage(r.Context(), fh.Filename, bytes.NewReader(data))
		if err != nil {
			api.discardImages(r, ids, handler, sID)
			httpError(w, "Internal Server Error", http.StatusInternalServerError)
			log.Errorf("[%s][%s] failed to store image: %v", handler, sID, err)
			return nil, false
		}
		ids = append(ids, id)
	}

	return ids, true
}

func (api *API) discardImages(r *http.Request, ids []string, handler, sID string) {
	for _, id := range ids {
		if err := api.db.DeleteImage(r.Context(), id); err != nil {
			log.Warnf("[%s][%s] failed to discard image %s: %v", handler, sID, id, err)
		}
	}
}

func readImage(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxImageSize {
		return nil, fmt.Errorf("file larger than %d bytes", maxImageSize)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("file larger than %d bytes", maxImageSize)
	}

	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		return nil, errNotImage
	}

	return data, nil
}
