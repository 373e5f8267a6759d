package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/FACorreiaa/nuam-ingest/pkg/storage"
)

var (
	ErrFileTooLarge = errors.New("file exceeds the upload limit")
	ErrBadUpload    = errors.New("invalid upload")
)

// DefaultMaxUploadBytes caps a single uploaded file.
const DefaultMaxUploadBytes int64 = 10 << 20

// uploadRule lists the extensions a client may send and the content types
// the first bytes of the file may sniff as.
type uploadRule struct {
	extensions map[string]bool
	detected   map[string]bool
}

var tabularRule = uploadRule{
	extensions: map[string]bool{".csv": true, ".txt": true, ".xlsx": true},
	detected: map[string]bool{
		"text/plain":               true,
		"text/csv":                 true,
		"application/octet-stream": true,
		"application/zip":          true,
	},
}

var pdfRule = uploadRule{
	extensions: map[string]bool{".pdf": true},
	detected:   map[string]bool{"application/pdf": true},
}

type uploadedFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// readUpload reads the multipart "file" field, enforcing size, extension and
// sniffed content type.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, rule uploadRule) (*uploadedFile, error) {
	// room for the multipart envelope around the file
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(64<<10))
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		if tooLarge(err) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("%w: %w", ErrBadUpload, err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file field", ErrBadUpload)
	}
	defer file.Close()

	if header.Size > maxBytes {
		return nil, ErrFileTooLarge
	}

	name := storage.SanitizeFilename(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if !rule.extensions[ext] {
		return nil, fmt.Errorf("%w: extension %q not allowed", ErrBadUpload, ext)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadUpload, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrFileTooLarge
	}

	// empty files reach the service, which records them as failed batches
	detected := "text/plain"
	if len(data) > 0 {
		detected = strings.ToLower(strings.Split(http.DetectContentType(data), ";")[0])
		if !rule.detected[detected] {
			return nil, fmt.Errorf("%w: content looks like %s", ErrBadUpload, detected)
		}
	}
	return &uploadedFile{Name: name, ContentType: detected, Data: data}, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}
