package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_BundlesImports(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greet.js"),
		[]byte(`export function greet(n) { return "hello " + n; }`), 0o644))
	entry := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(entry,
		[]byte(`import { greet } from "./greet.js";
nativeLoggingHook(greet("bundle"), 1);`), 0o644))

	out, err := File(entry)
	require.NoError(t, err)
	assert.NotContains(t, out, "import ")
	assert.Contains(t, out, "hello ")
	assert.Contains(t, out, "nativeLoggingHook")
}

func TestFile_MissingImport(t *testing.T) {
	entry := filepath.Join(t.TempDir(), "main.js")
	require.NoError(t, os.WriteFile(entry, []byte(`import "./nope.js";`), 0o644))

	_, err := File(entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bundling")
}

func TestTransform_TypeScript(t *testing.T) {
	out, err := Transform("main.ts", `const n: number = 2; nativeLoggingHook("n=" + n, 1);`)
	require.NoError(t, err)
	assert.NotContains(t, out, ": number")
	assert.Contains(t, out, "nativeLoggingHook")

	_, err = Transform("broken.ts", "const = ;")
	assert.Error(t, err)
}

func TestNeedsBundlingAndTransform(t *testing.T) {
	assert.True(t, NeedsBundling(`import x from "y"`))
	assert.True(t, NeedsBundling(`const fs = require("fs")`))
	assert.False(t, NeedsBundling(`nativeLoggingHook("x", 1)`))

	assert.True(t, NeedsTransform("app.tsx"))
	assert.False(t, NeedsTransform("app.js"))
}
