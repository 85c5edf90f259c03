package cobuild

import (
	"errors"

	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
)

// verifySighashAll authorizes the whole transaction with the seal in the
// first witness of the script group.
func (v *verification) verifySighashAll() error {
	if err := checkOthersInGroup(v.env); err != nil {
		return err
	}
	msg, err := FetchMessage(v.layouts)
	if err != nil {
		return err
	}
	if msg != nil {
		if err := CheckMessage(v.index, msg); err != nil {
			return err
		}
	}

	smh, err := generateSighashAllSMH(v.preimage, msg)
	if err != nil {
		return err
	}
	seal, err := fetchSeal(v.env)
	if err != nil {
		return err
	}

	what := "sighash-all-only"
	if msg != nil {
		what = "sighash-all"
	}
	return v.authorize(seal, smh, what)
}

// checkOthersInGroup requires every group witness after the first to be
// empty.
func checkOthersInGroup(env txenv.Env) error {
	for i := 1; ; i++ {
		witness, err := env.Witness(i, txenv.SourceGroupInput)
		if errors.Is(err, txenv.ErrIndexOutOfBound) {
			return nil
		}
		if err != nil {
			return hostError(err, "loading group witness %d", i)
		}
		if len(witness) != 0 {
			return newError(CodeWrongWitnessLayout, "group witness %d is not empty", i)
		}
	}
}

// FetchMessage returns the Message of the only SighashAll witness, or nil
// when there is none.
func FetchMessage(layouts []layout.WitnessLayout) (*layout.Message, error) {
	var (
		msg   *layout.Message
		found = -1
	)
	for i, l := range layouts {
		s, ok := l.(*layout.SighashAll)
		if !ok {
			continue
		}
		if found >= 0 {
			return nil, newError(CodeWrongWitnessLayout, "SighashAll at witnesses %d and %d", found, i)
		}
		msg, found = &s.Message, i
	}
	return msg, nil
}

// fetchSeal returns the seal of the first witness in the script group,
// which must be a SighashAll or SighashAllOnly.
func fetchSeal(env txenv.Env) ([]byte, error) {
	witness, err := env.Witness(0, txenv.SourceGroupInput)
	if err != nil {
		return nil, hostError(err, "loading first group witness")
	}
	l, err := layout.Decode(witness)
	if err != nil {
		return nil, wrapError(CodeEncoding, err, "first group witness")
	}
	switch s := l.(type) {
	case *layout.SighashAll:
		return s.Seal, nil
	case *layout.SighashAllOnly:
		return s.Seal, nil
	default:
		return nil, newError(CodeEncoding, "first group witness is %s, not a sighash-all layout", layout.Name(l))
	}
}
