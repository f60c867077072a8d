package main

import (
	"fmt"
	"os"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"
)

// resolveSharedLibrary locates the onnxruntime library. An explicit path must
// exist. A bare file name is looked up in ./lib and in lib/ next to the
// executable, and otherwise handed to the system loader unchanged.
func resolveSharedLibrary(libPath string) (string, error) {
	if filepath.Base(libPath) != libPath {
		abs, err := filepath.Abs(libPath)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("onnxruntime library not found: %s: %w", abs, err)
		}
		return abs, nil
	}

	candidates := []string{filepath.Join("lib", libPath)}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "lib", libPath))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Abs(candidate)
		}
	}

	return libPath, nil
}

// initRuntime loads the shared library and creates the process-wide onnxruntime
// environment. Callers must pair it with ort.DestroyEnvironment.
func initRuntime(libPath string) error {
	resolved, err := resolveSharedLibrary(libPath)
	if err != nil {
		return err
	}

	ort.SetSharedLibraryPath(resolved)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment from %s: %w", resolved, err)
	}
	return nil
}
