package enums

import "fmt"

// DocumentCategory names an uploaded identity document slot.
type DocumentCategory string

const (
	DocumentDriversLicense DocumentCategory = "drivers_license"
	DocumentPassportPhoto  DocumentCategory = "passport_photo"
	DocumentSignature      DocumentCategory = "signature"
)

// RequiredDocumentCategories lists every slot an application must fill, in
// the order they are validated.
var RequiredDocumentCategories = []DocumentCategory{
	DocumentDriversLicense,
	DocumentPassportPhoto,
	DocumentSignature,
}

func (d DocumentCategory) String() string {
	return string(d)
}

func (d DocumentCategory) IsValid() bool {
	for _, candidate := range RequiredDocumentCategories {
		if candidate == d {
			return true
		}
	}
	return false
}

func ParseDocumentCategory(value string) (DocumentCategory, error) {
	for _, candidate := range RequiredDocumentCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document category %q", value)
}
