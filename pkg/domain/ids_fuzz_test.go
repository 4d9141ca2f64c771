package domain

import (
	"encoding/json"
	"testing"

	dErrors "irpf/pkg/domain-errors"
)

// FuzzParseRecordID feeds arbitrary path segments, the way /records/{category}/{id}
// receives them. Accepted ids are never nil and survive a JSON round trip.
func FuzzParseRecordID(f *testing.F) {
	for _, seed := range []string{
		"",
		"7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"7C9E6679-7425-40DE-944B-E07FC1F90AE7",
		"{7c9e6679-7425-40de-944b-e07fc1f90ae7}",
		"urn:uuid:7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"00000000-0000-0000-0000-000000000000",
		"../../declarations/2024",
		"7c9e6679-7425-40de-944b-e07fc1f90ae7\x00",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseRecordID(input)
		if err != nil {
			if !dErrors.HasCode(err, dErrors.CodeInvalidInput) {
				t.Fatalf("rejection must be invalid_input, got %v", err)
			}
			return
		}
		if id.IsNil() {
			t.Fatal("nil id accepted")
		}

		raw, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var back RecordID
		if err := json.Unmarshal(raw, &back); err != nil || back != id {
			t.Fatalf("json round trip changed %s to %s (%v)", id, back, err)
		}
	})
}

// FuzzIDKindsAgree checks every id kind accepts exactly the same inputs.
func FuzzIDKindsAgree(f *testing.F) {
	f.Add("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	f.Add("2024")
	f.Add(" ")

	f.Fuzz(func(t *testing.T, input string) {
		_, errUser := ParseUserID(input)
		_, errRecord := ParseRecordID(input)
		_, errDecl := ParseDeclarationID(input)
		_, errSnap := ParseSnapshotID(input)

		ok := errUser == nil
		if (errRecord == nil) != ok || (errDecl == nil) != ok || (errSnap == nil) != ok {
			t.Fatalf("id kinds disagree on %q", input)
		}
	})
}
