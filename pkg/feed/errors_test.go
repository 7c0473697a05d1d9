package feed

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorHelpers(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"fetch", &FetchError{URL: "http://x", Err: base}, IsFetchError},
		{"parse", &ParseError{Feed: "asassn", Reason: "header changed"}, IsParseError},
		{"identity", &IdentityError{Feed: "asassn", Reason: "no id"}, IsIdentityError},
		{"delivery", &DeliveryError{IVORN: "ivo://x#y", Err: base}, IsDeliveryError},
		{"store", &StoreError{Op: "exists", Err: base}, IsStoreError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("check feed: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("helper did not match wrapped %T", tt.err)
			}
			if tt.check(base) {
				t.Errorf("helper matched an unrelated error")
			}
		})
	}

	if !errors.Is(&StoreError{Op: "insert", Err: base}, base) {
		t.Error("StoreError does not unwrap")
	}
}

func TestMatchString(t *testing.T) {
	if Absent.String() != "absent" || ExactMatch.String() != "exact_match" || PrefixMatch.String() != "prefix_match" {
		t.Error("unexpected Match strings")
	}
}
