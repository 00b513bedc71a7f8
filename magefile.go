//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
var Default = Build

// Build compiles the project binaries into the bin/ directory.
func Build() error {
	fmt.Println("Building...")
	return sh.Run("go", "build", "-o", "./bin", "./...")
}

// Install copies the unifysql binary to /usr/local/bin.
func Install() error {
	mg.Deps(Build)
	fmt.Println("Installing...")
	return sh.Run("cp", "bin/unifysql", "/usr/local/bin/unifysql")
}

// Test runs all tests in the project with verbose output.
func Test() error {
	fmt.Println("Running Tests...")
	return sh.Run("go", "test", "-v", "./...")
}

// TestNormalizer runs the identifier normalizer tests.
func TestNormalizer() error {
	fmt.Println("Running Normalizer Tests...")
	return sh.Run("go", "test", "-test.fullpath=true", "-timeout", "30s", "-run", "^TestNormalize", "github.com/darianmavgo/unifysql/converters/common")
}

// Convert converts every registered dataset, honoring UNIFYSQL_* overrides.
func Convert() error {
	mg.Deps(Build)
	fmt.Println("Converting datasets...")
	return sh.RunV("./bin/unifysql", "convert")
}

// Stats computes statistics over the unified datasets.
func Stats() error {
	mg.Deps(Build)
	fmt.Println("Collecting statistics...")
	return sh.RunV("./bin/unifysql", "stats")
}

// Clean removes the bin directory and the statistics output.
func Clean() error {
	fmt.Println("Cleaning...")
	if err := os.RemoveAll("bin"); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join("stats", "output")); err != nil {
		return err
	}
	return nil
}

// Tidy runs go mod tidy.
func Tidy() error {
	fmt.Println("Running go mod tidy...")
	return sh.Run("go", "mod", "tidy")
}

// Check runs formatting and linting checks (fmt, vet).
func Check() error {
	mg.Deps(Fmt, Vet)
	return nil
}

// Fmt runs go fmt ./...
func Fmt() error {
	fmt.Println("Running go fmt...")
	return sh.Run("go", "fmt", "./...")
}

// Vet runs go vet ./...
func Vet() error {
	fmt.Println("Running go vet...")
	return sh.Run("go", "vet", "./...")
}
