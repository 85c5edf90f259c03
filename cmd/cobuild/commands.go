package main

import (
	"encoding/hex"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/suffix-labs/ckb-cobuild/pkg/api"
	"github.com/suffix-labs/ckb-cobuild/pkg/cobuild"
	"github.com/suffix-labs/ckb-cobuild/pkg/crypto"
	"github.com/suffix-labs/ckb-cobuild/pkg/fixture"
	"github.com/suffix-labs/ckb-cobuild/pkg/signer"
)

var inspectCommand = &cli.Command{
	Name:  "inspect",
	Usage: "classify witnesses and show the OTX layout",
	Flags: []cli.Flag{fixtureFlag},
	Action: func(c *cli.Context) error {
		f, err := fixture.Load(c.Path(fixtureFlag.Name))
		if err != nil {
			return err
		}
		r, err := api.Inspect(f)
		if err != nil {
			return exitError(c, err)
		}

		w := c.App.Writer
		fmt.Fprintf(w, "Transaction %x\n", r.TxHash)
		fmt.Fprintf(w, "  Cobuild:  %t\n\n", r.Activated)

		fmt.Fprintln(w, "Witnesses:")
		for _, wi := range r.Witnesses {
			fmt.Fprintf(w, "  %3d  %-15s %d bytes\n", wi.Index, wi.Layout, wi.Size)
		}

		fmt.Fprintln(w, "\nInput locks:")
		for _, g := range r.Locks {
			fmt.Fprintf(w, "  %x  inputs %v\n", g.ScriptHash, g.Inputs)
		}

		if r.OtxStart == nil {
			return nil
		}
		s := r.OtxStart.Start
		fmt.Fprintf(w, "\nOtxStart at witness %d: inputs %d, outputs %d, cell deps %d, header deps %d\n",
			r.OtxStart.StartIndex, s.StartInputCell, s.StartOutputCell, s.StartCellDeps, s.StartHeaderDeps)
		for _, o := range r.Otxs {
			fmt.Fprintf(w, "  Otx %d flag %#02x: inputs [%d, +%d/+%d) outputs [%d, +%d) cell deps [%d, +%d) header deps [%d, +%d) seals %d actions %d\n",
				o.WitnessIndex, o.Flag,
				o.Fixed.InputStart, o.Fixed.InputCount, o.Dynamic.InputCount,
				o.Fixed.OutputStart, o.Fixed.OutputCount,
				o.Fixed.CellDepStart, o.Fixed.CellDepCount,
				o.Fixed.HeaderDepStart, o.Fixed.HeaderDepCount,
				o.Seals, o.Actions)
		}
		return nil
	},
}

var hashCommand = &cli.Command{
	Name:  "hash",
	Usage: "print the signing message hashes",
	Flags: []cli.Flag{fixtureFlag},
	Action: func(c *cli.Context) error {
		f, err := fixture.Load(c.Path(fixtureFlag.Name))
		if err != nil {
			return err
		}
		hr, err := api.Hashes(f)
		if err != nil {
			return exitError(c, err)
		}

		w := c.App.Writer
		mode := "sighash-all-only"
		if hr.WithMessage {
			mode = "sighash-all"
		}
		fmt.Fprintf(w, "%-16s 0x%x\n", mode, hr.SighashAll)
		for _, o := range hr.Otxs {
			fmt.Fprintf(w, "otx %-3d fixed    0x%x\n", o.WitnessIndex, o.Fixed)
			fmt.Fprintf(w, "otx %-3d dynamic  0x%x\n", o.WitnessIndex, o.Dynamic)
		}
		return nil
	},
}

var signCommand = &cli.Command{
	Name:  "sign",
	Usage: "fill seals with a secp256k1 key",
	Flags: []cli.Flag{
		fixtureFlag,
		&cli.StringFlag{
			Name:     "key",
			Usage:    "hex private key",
			EnvVars:  []string{"COBUILD_KEY"},
			Required: true,
		},
		&cli.IntSliceFlag{
			Name:  "otx",
			Usage: "witness index of an Otx to seal over its fixed range",
		},
		&cli.IntSliceFlag{
			Name:  "dynamic-otx",
			Usage: "witness index of an Otx to seal over its dynamic range",
		},
		&cli.IntFlag{
			Name:  "sighash-all",
			Usage: "witness index of the SighashAll or SighashAllOnly to seal",
			Value: -1,
		},
		&cli.PathFlag{
			Name:  "out",
			Usage: "write the signed fixture here instead of updating it in place",
		},
	},
	Action: func(c *cli.Context) error {
		key, err := crypto.PrivateKeyFromHex(c.String("key"))
		if err != nil {
			return err
		}
		req := api.SignRequest{
			Otxs:        c.IntSlice("otx"),
			DynamicOtxs: c.IntSlice("dynamic-otx"),
			SighashAll:  c.Int("sighash-all"),
		}
		if len(req.Otxs) == 0 && len(req.DynamicOtxs) == 0 && req.SighashAll < 0 {
			return fmt.Errorf("nothing to sign: pass --otx, --dynamic-otx or --sighash-all")
		}

		logger := appLogger(c)
		lock := signer.Secp256k1Blake160Lock(key.PublicKey())
		lockHash := lock.Hash()
		sign := func(f *fixture.Fixture) error {
			if err := api.Sign(f, key, req); err != nil {
				return exitError(c, err)
			}
			return nil
		}

		path := c.Path(fixtureFlag.Name)
		if out := c.Path("out"); out != "" {
			f, err := fixture.Load(path)
			if err != nil {
				return err
			}
			if err := sign(f); err != nil {
				return err
			}
			path = out
			if err := f.Save(out); err != nil {
				return err
			}
		} else if err := fixture.Update(path, sign); err != nil {
			return err
		}

		logger.Info("signed fixture",
			zap.String("path", path),
			zap.String("lock", hex.EncodeToString(lockHash[:])),
			zap.Ints("otx", req.Otxs),
			zap.Ints("dynamic_otx", req.DynamicOtxs),
			zap.Int("sighash_all", req.SighashAll))
		return nil
	},
}

var verifyCommand = &cli.Command{
	Name:  "verify",
	Usage: "run the engine for input locks",
	Flags: []cli.Flag{
		fixtureFlag,
		&cli.StringFlag{
			Name:  "script-hash",
			Usage: "verify only this lock (hex script hash); default is every input lock",
		},
	},
	Action: func(c *cli.Context) error {
		f, err := fixture.Load(c.Path(fixtureFlag.Name))
		if err != nil {
			return err
		}
		opts := engineOptions(c)
		w := c.App.Writer

		var results []api.LockResult
		var firstErr error
		if s := c.String("script-hash"); s != "" {
			raw, err := fixture.DecodeHex(s)
			if err != nil {
				return err
			}
			if len(raw) != 32 {
				return fmt.Errorf("script hash must be 32 bytes, got %d", len(raw))
			}
			var h [32]byte
			copy(h[:], raw)
			out, err := api.Verify(f, h, opts...)
			results = []api.LockResult{{ScriptHash: h, Outcome: out, Err: err}}
			firstErr = err
		} else {
			results, firstErr = api.VerifyAll(f, opts...)
		}

		for _, r := range results {
			status := describe(r)
			fmt.Fprintf(w, "%s  %s\n", hex.EncodeToString(r.ScriptHash[:]), status)
		}
		return exitError(c, firstErr)
	},
}

func describe(r api.LockResult) string {
	switch {
	case r.Err != nil:
		return "FAIL " + r.Err.Error()
	case !r.Outcome.Handled:
		return "legacy (not a cobuild transaction)"
	default:
		return fmt.Sprintf("ok (%d seals verified)", r.Outcome.Verified)
	}
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "show version information",
	Action: func(c *cli.Context) error {
		fmt.Fprintf(c.App.Writer, "cobuild v%s\n", Version)
		fmt.Fprintln(c.App.Writer, "CKB transaction cobuild authorization engine")
		fmt.Fprintf(c.App.Writer, "Error codes: 1-%d (see pkg/cobuild/errors.go)\n", int(cobuild.CodeWrongScriptType))
		return nil
	},
}
