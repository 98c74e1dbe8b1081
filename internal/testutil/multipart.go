package testutil

import (
	"bytes"
	"mime"
	"mime/multipart"
	"testing"
)

// File is one part of a multipart upload.
type File struct {
	Name string
	Data []byte
}

// MultipartBody encodes fields and files (under the "images" key) and
// returns the body with its Content-Type.
func MultipartBody(t *testing.T, fields map[string]string, files ...File) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField(%s): %v", k, err)
		}
	}
	for _, f := range files {
		fw, err := w.CreateFormFile("images", f.Name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			t.Fatalf("write %s: %v", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// FileHeaders parses files back into the headers a handler would see.
func FileHeaders(t *testing.T, files ...File) []*multipart.FileHeader {
	t.Helper()
	body, contentType := MultipartBody(t, nil, files...)
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("ParseMediaType: %v", err)
	}
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["images"]
}
