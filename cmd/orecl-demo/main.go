package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/finmath-go/orecl/compute"
	"github.com/finmath-go/orecl/opcode"
	"github.com/finmath-go/orecl/registry"
)

func main() {
	scenario := flag.String("scenario", "scalar",
		"Scenario to run: scalar, variate-mean, kernel-reuse, version-bump, indicator, disposal, list-devices")
	deviceIndex := flag.Int("device", 0, "index into the registry's device list")
	seed := flag.Uint64("seed", 42, "RNG seed used by scenarios that draw variates")
	flag.Parse()

	reg, err := registry.Open(logrus.StandardLogger())
	if err != nil {
		logrus.Fatalf("orecl-demo: opening registry: %+v", err)
	}
	defer reg.Close()

	if *scenario == "list-devices" {
		listDevices(reg)
		return
	}

	names := reg.Names()
	if len(names) == 0 {
		logrus.Fatal("orecl-demo: no OpenCL devices visible to the ICD loader")
	}
	if *deviceIndex < 0 || *deviceIndex >= len(names) {
		logrus.Fatalf("orecl-demo: device index %d out of range, have %d device(s)", *deviceIndex, len(names))
	}
	name := names[*deviceIndex]

	ctx, err := reg.Context(name)
	if err != nil {
		logrus.Fatalf("orecl-demo: %+v", err)
	}
	if err := ctx.Init(); err != nil {
		logrus.Fatalf("orecl-demo: init %s: %+v", name, err)
	}

	switch *scenario {
	case "scalar":
		scalarArithmetic(ctx)
	case "variate-mean":
		variateMean(ctx, *seed)
	case "kernel-reuse":
		kernelReuse(ctx)
	case "version-bump":
		versionBump(ctx)
	case "indicator":
		indicatorSemantics(ctx)
	case "disposal":
		disposal(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown scenario: %s. Options: scalar, variate-mean, kernel-reuse, version-bump, indicator, disposal, list-devices\n", *scenario)
		os.Exit(1)
	}
}

func listDevices(reg *registry.Registry) {
	for _, name := range reg.Names() {
		ctx, err := reg.Context(name)
		if err != nil {
			logrus.WithError(err).Warnf("orecl-demo: skipping %s", name)
			continue
		}
		if err := ctx.Init(); err != nil {
			logrus.WithError(err).Warnf("orecl-demo: could not initialize %s, type sizes unavailable", name)
		} else if err := reg.RefreshTypeSizes(name); err != nil {
			logrus.WithError(err).Warnf("orecl-demo: could not probe type sizes for %s", name)
		}

		info, _ := reg.DeviceInfo(name)
		fmt.Println(info.String())
	}
}

// scalarArithmetic is spec.md §8 scenario 1: n=4, a=3.0 scalar, b=[1,2,3,4]
// vector, t = a*b, y = t + a. Expects y = [6,9,12,15].
func scalarArithmetic(ctx *compute.Context) {
	settings := compute.Settings{UseDoublePrecision: true}
	_, _, err := ctx.InitiateCalculation(4, 0, 0, settings)
	if err != nil {
		logrus.Fatalf("initiateCalculation: %+v", err)
	}

	a, err := ctx.CreateInputScalar(3.0)
	if err != nil {
		logrus.Fatalf("createInputScalar: %+v", err)
	}
	b, err := ctx.CreateInputVector([]float64{1, 2, 3, 4})
	if err != nil {
		logrus.Fatalf("createInputVector: %+v", err)
	}

	t, err := ctx.ApplyOperation(opcode.Mul, []int{a, b})
	if err != nil {
		logrus.Fatalf("applyOperation mul: %+v", err)
	}
	y, err := ctx.ApplyOperation(opcode.Add, []int{t, a})
	if err != nil {
		logrus.Fatalf("applyOperation add: %+v", err)
	}
	if err := ctx.DeclareOutputVariable(y); err != nil {
		logrus.Fatalf("declareOutputVariable: %+v", err)
	}

	out := [][]float64{make([]float64, 4)}
	if err := ctx.FinalizeCalculation(out); err != nil {
		logrus.Fatalf("finalizeCalculation: %+v", err)
	}
	fmt.Printf("scalar arithmetic: y = %v (expect [6 9 12 15])\n", out[0])
}

// variateMean is spec.md §8 scenario 2: n=1000, dim=1, steps=1, output the
// variate directly. Sample mean should fall in [-0.1, 0.1] and sample
// variance in [0.9, 1.1].
func variateMean(ctx *compute.Context, seed uint64) {
	const n = 1000
	settings := compute.Settings{UseDoublePrecision: true, RNGSeed: seed}
	if _, _, err := ctx.InitiateCalculation(n, 0, 0, settings); err != nil {
		logrus.Fatalf("initiateCalculation: %+v", err)
	}

	ids, err := ctx.CreateInputVariates(1, 1)
	if err != nil {
		logrus.Fatalf("createInputVariates: %+v", err)
	}
	if err := ctx.DeclareOutputVariable(ids[0][0]); err != nil {
		logrus.Fatalf("declareOutputVariable: %+v", err)
	}

	out := [][]float64{make([]float64, n)}
	if err := ctx.FinalizeCalculation(out); err != nil {
		logrus.Fatalf("finalizeCalculation: %+v", err)
	}

	var sum, sumSq float64
	for _, v := range out[0] {
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	fmt.Printf("variate mean: mean=%.4f variance=%.4f (expect mean in [-0.1,0.1], variance in [0.9,1.1])\n", mean, variance)
}

// kernelReuse is spec.md §8 scenario 3: run scalarArithmetic-shaped work
// twice under the same (id, version); the second run must report zero
// additional nanosProgramBuild.
func kernelReuse(ctx *compute.Context) {
	settings := compute.Settings{UseDoublePrecision: true, Debug: true}

	runOnce := func(id int) int {
		newID, fresh, err := ctx.InitiateCalculation(4, id, 0, settings)
		if err != nil {
			logrus.Fatalf("initiateCalculation: %+v", err)
		}
		a, err := ctx.CreateInputScalar(3.0)
		if err != nil {
			logrus.Fatalf("createInputScalar: %+v", err)
		}
		b, err := ctx.CreateInputVector([]float64{1, 2, 3, 4})
		if err != nil {
			logrus.Fatalf("createInputVector: %+v", err)
		}
		t, err := ctx.ApplyOperation(opcode.Mul, []int{a, b})
		if err != nil {
			logrus.Fatalf("applyOperation mul: %+v", err)
		}
		y, err := ctx.ApplyOperation(opcode.Add, []int{t, a})
		if err != nil {
			logrus.Fatalf("applyOperation add: %+v", err)
		}
		if err := ctx.DeclareOutputVariable(y); err != nil {
			logrus.Fatalf("declareOutputVariable: %+v", err)
		}
		out := [][]float64{make([]float64, 4)}
		if err := ctx.FinalizeCalculation(out); err != nil {
			logrus.Fatalf("finalizeCalculation: %+v", err)
		}
		fmt.Printf("kernel reuse: run id=%d fresh=%v y=%v\n", newID, fresh, out[0])
		return newID
	}

	id := runOnce(0)
	before := ctx.Stats().NanosProgramBuild
	runOnce(id)
	after := ctx.Stats().NanosProgramBuild
	fmt.Printf("kernel reuse: nanosProgramBuild delta on second run = %d (expect 0)\n", after-before)
}

// versionBump is spec.md §8 scenario 4: the same id re-initiated with
// version=1 and the operation swapped from t=a*b to t=a+b forces a kernel
// rebuild and produces [4,5,6,7].
func versionBump(ctx *compute.Context) {
	settings := compute.Settings{UseDoublePrecision: true}

	id, _, err := ctx.InitiateCalculation(4, 0, 0, settings)
	if err != nil {
		logrus.Fatalf("initiateCalculation: %+v", err)
	}
	a, _ := ctx.CreateInputScalar(3.0)
	b, _ := ctx.CreateInputVector([]float64{1, 2, 3, 4})
	t, err := ctx.ApplyOperation(opcode.Mul, []int{a, b})
	if err != nil {
		logrus.Fatalf("applyOperation mul: %+v", err)
	}
	y, err := ctx.ApplyOperation(opcode.Add, []int{t, a})
	if err != nil {
		logrus.Fatalf("applyOperation add: %+v", err)
	}
	if err := ctx.DeclareOutputVariable(y); err != nil {
		logrus.Fatalf("declareOutputVariable: %+v", err)
	}
	out := [][]float64{make([]float64, 4)}
	if err := ctx.FinalizeCalculation(out); err != nil {
		logrus.Fatalf("finalizeCalculation: %+v", err)
	}
	fmt.Printf("version bump: version=0 y=%v\n", out[0])

	_, fresh, err := ctx.InitiateCalculation(4, id, 1, settings)
	if err != nil {
		logrus.Fatalf("initiateCalculation: %+v", err)
	}
	a2, _ := ctx.CreateInputScalar(3.0)
	b2, _ := ctx.CreateInputVector([]float64{1, 2, 3, 4})
	y2, err := ctx.ApplyOperation(opcode.Add, []int{a2, b2})
	if err != nil {
		logrus.Fatalf("applyOperation add: %+v", err)
	}
	if err := ctx.DeclareOutputVariable(y2); err != nil {
		logrus.Fatalf("declareOutputVariable: %+v", err)
	}
	out2 := [][]float64{make([]float64, 4)}
	if err := ctx.FinalizeCalculation(out2); err != nil {
		logrus.Fatalf("finalizeCalculation: %+v", err)
	}
	fmt.Printf("version bump: version=1 fresh=%v y=%v (expect [4 5 6 7])\n", fresh, out2[0])
}

// indicatorSemantics is spec.md §8 scenario 5: IndicatorEq(x, y) with
// x=[1.0, 1.0+1e-20, 1.000001] and y=1.0 scalar should yield [1,1,0].
func indicatorSemantics(ctx *compute.Context) {
	settings := compute.Settings{UseDoublePrecision: true}
	if _, _, err := ctx.InitiateCalculation(3, 0, 0, settings); err != nil {
		logrus.Fatalf("initiateCalculation: %+v", err)
	}
	x, err := ctx.CreateInputVector([]float64{1.0, 1.0 + 1e-20, 1.000001})
	if err != nil {
		logrus.Fatalf("createInputVector: %+v", err)
	}
	y, err := ctx.CreateInputScalar(1.0)
	if err != nil {
		logrus.Fatalf("createInputScalar: %+v", err)
	}
	eq, err := ctx.ApplyOperation(opcode.IndicatorEq, []int{x, y})
	if err != nil {
		logrus.Fatalf("applyOperation indicatorEq: %+v", err)
	}
	if err := ctx.DeclareOutputVariable(eq); err != nil {
		logrus.Fatalf("declareOutputVariable: %+v", err)
	}
	out := [][]float64{make([]float64, 3)}
	if err := ctx.FinalizeCalculation(out); err != nil {
		logrus.Fatalf("finalizeCalculation: %+v", err)
	}
	fmt.Printf("indicator semantics: IndicatorEq(x,y) = %v (expect [1 1 0])\n", out[0])
}

// disposal is spec.md §8 scenario 6: dispose a calculation then try to
// operate on it (BadId), then dispose it again (BadId).
func disposal(ctx *compute.Context) {
	settings := compute.Settings{UseDoublePrecision: true}
	id, _, err := ctx.InitiateCalculation(4, 0, 0, settings)
	if err != nil {
		logrus.Fatalf("initiateCalculation: %+v", err)
	}
	a, _ := ctx.CreateInputScalar(1.0)
	if err := ctx.DeclareOutputVariable(a); err != nil {
		logrus.Fatalf("declareOutputVariable: %+v", err)
	}
	out := [][]float64{make([]float64, 4)}
	if err := ctx.FinalizeCalculation(out); err != nil {
		logrus.Fatalf("finalizeCalculation: %+v", err)
	}

	if err := ctx.DisposeCalculation(id); err != nil {
		logrus.Fatalf("disposeCalculation: unexpected error: %+v", err)
	}
	fmt.Printf("disposal: disposed id=%d\n", id)

	if _, _, err := ctx.InitiateCalculation(4, id, 0, settings); err != nil {
		fmt.Printf("disposal: initiateCalculation on disposed id failed as expected: %v\n", err)
	} else {
		fmt.Println("disposal: unexpected success operating on a disposed id")
	}

	if err := ctx.DisposeCalculation(id); err != nil {
		fmt.Printf("disposal: second disposal failed as expected: %v\n", err)
	} else {
		fmt.Println("disposal: unexpected success on double disposal")
	}
}
