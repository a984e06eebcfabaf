package validation

import "testing"

type videoInput struct {
	Source  string `validate:"required,video_source"`
	BatchID string `validate:"omitempty,entity_id"`
	Date    string `validate:"yyyymmdd"`
}

func TestDomainTags(t *testing.T) {
	v := NewValidator()
	cases := []struct {
		name  string
		in    videoInput
		field string
	}{
		{"valid", videoInput{Source: "zoom", BatchID: "B1", Date: "2024-03-01"}, ""},
		{"unknown source", videoInput{Source: "vimeo"}, "source"},
		{"sentinel batch id", videoInput{Source: "drive", BatchID: "undefined"}, "batchid"},
		{"bad date", videoInput{Source: "drive", Date: "01/03/2024"}, "date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateStruct(tc.in)
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if _, ok := FormatValidationErrors(err)[tc.field]; !ok {
				t.Errorf("expected error on %s, got %v", tc.field, err)
			}
		})
	}
}

func TestValidDate(t *testing.T) {
	for s, want := range map[string]bool{
		"":           true,
		"2024-02-29": true,
		"2024-13-01": false,
		"2024-1-01":  false,
		"abcd-ef-gh": false,
	} {
		if got := ValidDate(s); got != want {
			t.Errorf("ValidDate(%q) = %v, want %v", s, got, want)
		}
	}
}
