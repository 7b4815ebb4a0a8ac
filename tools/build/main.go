// Command build holds the developer tasks for this repository.
//
//	go run ./tools/build vet test
//	go run ./tools/build property
package main

import (
	"os"
	"os/exec"

	"github.com/goyek/goyek/v2"
)

func run(a *goyek.A, name string, args ...string) {
	a.Helper()
	cmd := exec.CommandContext(a.Context(), name, args...)
	cmd.Stdout = a.Output()
	cmd.Stderr = a.Output()
	if err := cmd.Run(); err != nil {
		a.Error(err)
	}
}

var vet = goyek.Define(goyek.Task{
	Name:  "vet",
	Usage: "Run go vet on all packages",
	Action: func(a *goyek.A) {
		run(a, "go", "vet", "./...")
	},
})

var test = goyek.Define(goyek.Task{
	Name:  "test",
	Usage: "Run unit tests with the race detector",
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-race", "./...")
	},
})

var property = goyek.Define(goyek.Task{
	Name:  "property",
	Usage: "Run property-based tests",
	Action: func(a *goyek.A) {
		run(a, "go", "test", "-tags", "property", "./internal/...")
	},
})

var _ = goyek.Define(goyek.Task{
	Name:  "deps",
	Usage: "Report import cycles between internal packages",
	Action: func(a *goyek.A) {
		graph, err := importGraph(".")
		if err != nil {
			a.Fatal(err)
		}
		for _, cycle := range findCycles(graph) {
			a.Errorf("import cycle: %s", cycle)
		}
	},
})

var _ = goyek.Define(goyek.Task{
	Name:  "all",
	Usage: "Run vet, unit and property tests",
	Deps:  goyek.Deps{vet, test, property},
})

func main() {
	goyek.SetDefault(test)
	goyek.Main(os.Args[1:])
}
