package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
)

// formPart is one file of a multipart form. Exactly one of path and
// reader is set.
type formPart struct {
	field    string
	filename string
	path     string
	reader   io.Reader
}

// multipartForm collects the fields and files of a multipart call. It is
// encoded into a binary Body once, when the call is sent, so the payload
// can be replayed across redirects.
type multipartForm struct {
	fields map[string]string
	files  []formPart
}

func (f *multipartForm) empty() bool {
	return f == nil || (len(f.fields) == 0 && len(f.files) == 0)
}

// encode renders the form and returns the payload with its Content-Type.
// Fields are written in key order, files in the order they were added.
func (f *multipartForm) encode() (Body, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(f.fields))
	for k := range f.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, f.fields[k]); err != nil {
			return Body{}, "", err
		}
	}

	for _, p := range f.files {
		if err := writePart(w, p); err != nil {
			return Body{}, "", err
		}
	}

	if err := w.Close(); err != nil {
		return Body{}, "", err
	}
	return BinaryBody(buf.Bytes()), w.FormDataContentType(), nil
}

func writePart(w *multipart.Writer, p formPart) error {
	src := p.reader
	if p.path != "" {
		f, err := os.Open(p.path)
		if err != nil {
			return fmt.Errorf("opening form file: %w", err)
		}
		defer f.Close()
		src = f
	}

	part, err := w.CreateFormFile(p.field, p.filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}

// File adds the file at filePath to a multipart/form-data payload. The
// file is read when the call is sent.
//
// Example:
//
//	resp, err := client.Request("UploadReport").
//	    File("document", "/tmp/report.pdf").
//	    FormField("title", "Q4 Report").
//	    Post(ctx, "https://files.example.com/upload")
func (rb *RequestBuilder) File(fieldName, filePath string) *RequestBuilder {
	rb.form().files = append(rb.form().files, formPart{
		field:    fieldName,
		filename: filepath.Base(filePath),
		path:     filePath,
	})
	return rb
}

// FileReader adds reader as a file named fileName to a multipart payload.
func (rb *RequestBuilder) FileReader(fieldName, fileName string, reader io.Reader) *RequestBuilder {
	rb.form().files = append(rb.form().files, formPart{
		field:    fieldName,
		filename: fileName,
		reader:   reader,
	})
	return rb
}

// FormField adds a text field to a multipart payload.
func (rb *RequestBuilder) FormField(key, value string) *RequestBuilder {
	rb.form().fields[key] = value
	return rb
}

func (rb *RequestBuilder) form() *multipartForm {
	if rb.multipart == nil {
		rb.multipart = &multipartForm{fields: make(map[string]string)}
	}
	return rb.multipart
}
