package validators

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/fastidp/fastidp-backend/pkg/errors"
)

type couponBody struct {
	Code string `json:"code" validate:"required,max=64"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":""}`))
	var body couponBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || details["code"] != "is required" {
		t.Fatalf("expected json field name in details, got %#v", typed.Details())
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"SAVE10","extra":true}`))
	var body couponBody
	if err := DecodeJSONBody(req, &body); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestDecodeFormJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if err := mw.WriteField("payload", `{"code":"SAVE10"}`); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := mw.CreateFormFile("signature", "sig.png")
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	_, _ = part.Write([]byte("png-bytes"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	if err := ParseMultipart(rec, req, 1<<20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}
	var body couponBody
	if err := DecodeFormJSON(req, "payload", &body); err != nil {
		t.Fatalf("decode form json: %v", err)
	}
	if body.Code != "SAVE10" {
		t.Fatalf("unexpected code %q", body.Code)
	}
	if files := FormFiles(req, "signature"); len(files) != 1 || files[0].Filename != "sig.png" {
		t.Fatalf("expected signature upload, got %v", files)
	}
	if err := DecodeFormJSON(req, "missing", &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing field, got %v", err)
	}
}

func TestDecodeFormJSONRejectsUnknownKeys(t *testing.T) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if err := mw.WriteField("formData", `{"Code":"SAVE10","firstName":"Ada"}`); err != nil {
		t.Fatalf("write field: %v", err)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := ParseMultipart(httptest.NewRecorder(), req, 1<<20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}

	var body couponBody
	err := DecodeFormJSON(req, "formData", &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if typed.Message() != "unknown field firstName in formData" {
		t.Fatalf("unexpected message %q", typed.Message())
	}
	details, _ := typed.Details().(map[string]any)
	if details["field"] != "formData.firstName" {
		t.Fatalf("unexpected details %v", typed.Details())
	}
}

func TestDecodeJSONBodyRejectsEmptyAndTrailingInput(t *testing.T) {
	var body couponBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &body)
	if typed := pkgerrors.As(err); typed == nil || typed.Message() != "request body is required" {
		t.Fatalf("expected empty body error, got %v", err)
	}

	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A"}{"code":"B"}`)), &body)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected trailing document to be rejected, got %v", err)
	}
}

type speedBody struct {
	Speed string `json:"speed" validate:"oneof=standard expedited"`
}

func TestDecodeJSONBodyDescribesOneOf(t *testing.T) {
	var body speedBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"speed":"overnight"}`)), &body)
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected validation error")
	}
	details, _ := typed.Details().(map[string]string)
	if details["speed"] != "must be one of [standard expedited]" {
		t.Fatalf("unexpected details %#v", typed.Details())
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  abcdef  ", 3); got != "abc" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
	if got := SanitizeString("São\tPaulo", 0); got != "São Paulo" {
		t.Fatalf("control characters should become spaces, got %q", got)
	}
	if got := SanitizeString("ñandú", 2); got != "ña" {
		t.Fatalf("truncation must respect runes, got %q", got)
	}
	if got := SanitizeCode(" tx ", 2); got != "TX" {
		t.Fatalf("unexpected code %q", got)
	}
}
