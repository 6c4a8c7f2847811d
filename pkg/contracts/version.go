package contracts

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// PlanSchemaVersion is stamped on every plan the companion issues.
const PlanSchemaVersion = "1.0.0"

var planSchemaConstraint = mustConstraint("^1.0.0")

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// SchemaCompatible reports whether an executor built for the current plan
// schema can read a plan stamped with version v. An empty version is
// treated as the current one.
func SchemaCompatible(v string) (bool, error) {
	if v == "" {
		return true, nil
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return false, fmt.Errorf("invalid schema version %q: %w", v, err)
	}
	return planSchemaConstraint.Check(sv), nil
}
