package cobuild

import (
	"errors"

	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
)

// ParseWitnessLayouts decodes every witness of the transaction.
//
// The result has one entry per witness; nil marks a witness that is not a
// cobuild layout (a legacy WitnessArgs, an empty witness, arbitrary bytes).
// activated is true iff at least one witness is a cobuild layout. A
// witness that is recognized as a layout but fails nested verification is
// a hard error.
func ParseWitnessLayouts(env txenv.Env) ([]layout.WitnessLayout, bool, error) {
	count, err := env.WitnessCount()
	if err != nil {
		return nil, false, hostError(err, "counting witnesses")
	}

	layouts := make([]layout.WitnessLayout, count)
	activated := false
	for i := 0; i < count; i++ {
		witness, err := env.Witness(i, txenv.SourceInput)
		if err != nil {
			return nil, false, hostError(err, "loading witness %d", i)
		}

		l, err := layout.Decode(witness)
		if errors.Is(err, layout.ErrUnrecognized) {
			continue
		}
		if err != nil {
			return nil, false, wrapError(CodeEncoding, err, "witness %d", i)
		}
		layouts[i] = l
		activated = true
	}
	return layouts, activated, nil
}
