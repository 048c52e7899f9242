package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"corridor-platform/internal/services"
)

// maxUploadMemory is the part of a multipart form kept in memory
const maxUploadMemory = 32 << 20

// formUploads opens the files posted under field. Requests that are not
// multipart carry no files. The returned func closes the opened files.
func formUploads(c *gin.Context, field string) ([]services.Upload, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, noop, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, nil
		}
		return nil, noop, fmt.Errorf("error reading multipart form: %w", err)
	}

	headers := form.File[field]
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, noop, fmt.Errorf("error opening upload %s: %w", fh.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, services.Upload{Name: fh.Filename, Size: fh.Size, File: f})
	}
	return uploads, closeAll, nil
}
