// Package testutils provides fixtures shared by the test suites.
package testutils

import (
	"github.com/go-logr/logr"
	"github.com/onsi/ginkgo/v2"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

const (
	// TestStage is a running sum per partition.
	TestStage = `{"partitionBy": "$p", "sortBy": {"t": 1}, "output": {"s": {"$sum": "$v", ` +
		`"window": {"documents": ["unbounded", "current"]}}}}`

	// TestStageYAML is a manifest computing a moving average per partition.
	TestStageYAML = `apiVersion: windowfields.l7mp.io/v1alpha1
kind: SetWindowFields
spec:
  partitionBy: $p
  sortBy:
    - t: 1
  output:
    avg:
      $avg: $v
      window:
        documents: [-1, 1]
`

	// TestInput is a sorted input in JSON lines format.
	TestInput = `{"p":"a","t":1,"v":1}
{"p":"a","t":2,"v":2}
{"p":"b","t":1,"v":5}
`

	// TestInputUnsorted is TestInput shuffled.
	TestInputUnsorted = `{"p":"b","t":1,"v":5}
{"p":"a","t":2,"v":2}
{"p":"a","t":1,"v":1}
`
)

// NewLogger returns a development logger that writes to the Ginkgo output.
func NewLogger(level int) logr.Logger {
	return zap.New(zap.UseFlagOptions(&zap.Options{
		Development:     true,
		DestWriter:      ginkgo.GinkgoWriter,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
		Level:           zapcore.Level(level),
	}))
}
