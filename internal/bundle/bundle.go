// Package bundle prepares script sources for an executor with esbuild:
// bundling an entry point and its imports into one classic script, or
// transforming a single TypeScript/JSX file.
package bundle

import (
	"fmt"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// Target is the language level emitted for engines.
var Target = esbuild.ES2017

// File bundles entryPoint with all its imports into a self-contained IIFE
// script. Sources without import statements are still run through esbuild
// so TypeScript and JSX entry points work.
func File(entryPoint string) (string, error) {
	abs, err := filepath.Abs(entryPoint)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", entryPoint, err)
	}

	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{abs},
		AbsWorkingDir: filepath.Dir(abs),
		Bundle:        true,
		Format:        esbuild.FormatIIFE,
		Write:         false,
		Platform:      esbuild.PlatformNeutral,
		Target:        Target,
		LogLevel:      esbuild.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("bundling %s: %s", entryPoint, joinMessages(result.Errors))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling %s produced no output", entryPoint)
	}
	return string(result.OutputFiles[0].Contents), nil
}

// Transform compiles one source file to plain JavaScript without resolving
// imports. The loader is chosen from name's extension.
func Transform(name, source string) (string, error) {
	result := esbuild.Transform(source, esbuild.TransformOptions{
		Loader:     loaderFor(name),
		Target:     Target,
		Sourcefile: name,
		LogLevel:   esbuild.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("transforming %s: %s", name, joinMessages(result.Errors))
	}
	return string(result.Code), nil
}

// NeedsBundling reports whether source contains import statements or
// require calls that only a bundle step can resolve.
func NeedsBundling(source string) bool {
	return strings.Contains(source, "import ") ||
		strings.Contains(source, "import{") ||
		strings.Contains(source, "import(") ||
		strings.Contains(source, "require(")
}

// NeedsTransform reports whether name's extension is not plain JavaScript.
func NeedsTransform(name string) bool {
	return loaderFor(name) != esbuild.LoaderJS
}

func loaderFor(name string) esbuild.Loader {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ts", ".mts", ".cts":
		return esbuild.LoaderTS
	case ".tsx":
		return esbuild.LoaderTSX
	case ".jsx":
		return esbuild.LoaderJSX
	default:
		return esbuild.LoaderJS
	}
}

func joinMessages(msgs []esbuild.Message) string {
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Text
	}
	return strings.Join(texts, "; ")
}
