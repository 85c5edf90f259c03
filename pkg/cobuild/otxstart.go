package cobuild

import (
	"github.com/suffix-labs/ckb-cobuild/pkg/layout"
	"github.com/suffix-labs/ckb-cobuild/pkg/txenv"
)

// OtxRun locates the open transactions of a transaction: the OtxStart
// marker and the contiguous Otx witnesses that follow it.
type OtxRun struct {
	Start      layout.OtxStart
	StartIndex int // Witness index of the OtxStart marker
	EndIndex   int // One past the last Otx witness of the run
}

// Len returns the number of Otx witnesses in the run.
func (r *OtxRun) Len() int {
	return r.EndIndex - r.StartIndex - 1
}

// FindOtxStart scans the classified witnesses for the OtxStart marker.
//
// At most one OtxStart may appear, and every Otx must directly follow the
// marker or another Otx. found is false when there is no OtxStart at all,
// which is not an error.
func FindOtxStart(layouts []layout.WitnessLayout) (run *OtxRun, found bool, err error) {
	for i, l := range layouts {
		switch v := l.(type) {
		case *layout.OtxStart:
			if run != nil {
				return nil, false, newError(CodeWrongWitnessLayout,
					"second OtxStart at witness %d, first at %d", i, run.StartIndex)
			}
			run = &OtxRun{Start: *v, StartIndex: i, EndIndex: i + 1}
		case *layout.Otx:
			if run == nil {
				return nil, false, newError(CodeWrongWitnessLayout, "Otx at witness %d before any OtxStart", i)
			}
			if run.EndIndex != i {
				return nil, false, newError(CodeWrongWitnessLayout,
					"Otx at witness %d is not contiguous with the run ending at %d", i, run.EndIndex)
			}
			run.EndIndex = i + 1
		}
	}
	return run, run != nil, nil
}

// checkOtxStart rejects start offsets that point past the end of their
// arrays.
func checkOtxStart(env txenv.Env, start *layout.OtxStart) error {
	checks := []struct {
		source txenv.Source
		offset uint32
	}{
		{txenv.SourceInput, start.StartInputCell},
		{txenv.SourceOutput, start.StartOutputCell},
		{txenv.SourceCellDep, start.StartCellDeps},
		{txenv.SourceHeaderDep, start.StartHeaderDeps},
	}
	for _, c := range checks {
		count, err := env.Count(c.source)
		if err != nil {
			return hostError(err, "counting %s", c.source)
		}
		if uint64(c.offset) > uint64(count) {
			return newError(CodeWrongOtxStart, "start %s %d exceeds count %d", c.source, c.offset, count)
		}
	}
	return nil
}
