package syncer

import "fmt"

// ImportPolicy decides what happens to a batch that has some invalid rows.
type ImportPolicy string

const (
	// PolicyStrict fails the whole batch on any row error.
	PolicyStrict ImportPolicy = "strict"
	// PolicySkipInvalid imports the valid rows and reports the rest.
	PolicySkipInvalid ImportPolicy = "skip_invalid"
)

func ParseImportPolicy(s string) (ImportPolicy, error) {
	switch ImportPolicy(s) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicySkipInvalid:
		return PolicySkipInvalid, nil
	}
	return "", fmt.Errorf("unknown import policy %q", s)
}
