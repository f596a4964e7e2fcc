//go:build !v8

package jsbridge

import (
	_ "github.com/cryguy/jsbridge/internal/gojaengine"
	"github.com/cryguy/jsbridge/internal/quickjs"
)

const defaultEngine = quickjs.Name
