package types

import (
	"testing"

	"github.com/fastidp/fastidp-backend/pkg/enums"
)

func TestFormDataFlatten(t *testing.T) {
	form := FormData{
		Email:            "ana@example.com",
		FirstName:        "Ana",
		LastName:         "Lopez",
		SelectedPermits:  []string{"idp_1949", "idp_1926"},
		ProcessingSpeed:  enums.ProcessingFast,
		ShippingCategory: enums.ShippingDomestic,
		ShippingAddress: &ShippingAddress{
			Street1:    "1 Main St",
			City:       "Austin",
			State:      "TX",
			PostalCode: "78701",
		},
	}

	flat, err := form.Flatten()
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if flat["email"] != "ana@example.com" {
		t.Fatalf("unexpected email %v", flat["email"])
	}
	if flat["selected_permits"] != "idp_1949,idp_1926" {
		t.Fatalf("unexpected permits %v", flat["selected_permits"])
	}
	if flat["shipping_address_city"] != "Austin" {
		t.Fatalf("expected nested address to flatten, got %v", flat)
	}
	if _, ok := flat["shipping_address"]; ok {
		t.Fatalf("nested map should not survive flattening")
	}
	if _, ok := flat["pccc_code"]; ok {
		t.Fatalf("omitted fields should not appear")
	}
}

func TestFormDataFullName(t *testing.T) {
	form := FormData{FirstName: " Ana ", MiddleName: "", LastName: "Lopez"}
	if got := form.FullName(); got != "Ana Lopez" {
		t.Fatalf("unexpected full name %q", got)
	}
}
