//go:build v8

package jsbridge

import (
	_ "github.com/cryguy/jsbridge/internal/gojaengine"
	_ "github.com/cryguy/jsbridge/internal/quickjs"
	"github.com/cryguy/jsbridge/internal/v8engine"
)

const defaultEngine = v8engine.Name
