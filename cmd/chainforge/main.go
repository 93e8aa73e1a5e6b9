package main

import (
	"fmt"
	"os"

	"github.com/chainforge-ai/chainforge/internal/chainerr"
	"github.com/chainforge-ai/chainforge/pkg/ux"
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd, a := newRootCmd()
	if a != nil {
		defer a.Close()
	}

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, ux.Styles.Error.Render(fmt.Sprintf("chainforge: %v", err)))
	}
	return chainerr.ExitCode(err)
}
