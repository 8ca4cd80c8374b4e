package validators

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
)

// ParseMultipart reads a multipart body capped at maxBytes.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "upload exceeds size limit").WithDetails(map[string]any{"max_bytes": maxBytes})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart body")
	}
	return nil
}

// DecodeFormJSON decodes a JSON document carried in a multipart text field and
// validates it the same way DecodeJSONBody does, unknown keys included.
func DecodeFormJSON(r *http.Request, field string, dest any) error {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" is required").WithDetails(map[string]any{"field": field})
	}
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
			name = strings.Trim(name, `"`)
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown field "+name+" in "+field).WithDetails(map[string]any{"field": field + "." + name})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field).WithDetails(map[string]any{"error": err.Error()})
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" must contain a single JSON object")
	}
	return validateStruct(dest)
}

// FormFiles returns the uploaded files for a multipart field, if any.
func FormFiles(r *http.Request, field string) []*multipart.FileHeader {
	if r.MultipartForm == nil || r.MultipartForm.File == nil {
		return nil
	}
	return r.MultipartForm.File[field]
}
