package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"k8s.io/apimachinery/pkg/util/json"

	"github.com/l7mp/windowfields/pkg/metrics"
	"github.com/l7mp/windowfields/pkg/object"
	"github.com/l7mp/windowfields/pkg/plan"
	"github.com/l7mp/windowfields/pkg/window"
)

const runningSum = `{"partitionBy":"$p","sortBy":{"t":1},"output":{` +
	`"s":{"$sum":"$v","window":{"documents":["unbounded","current"]}}}}`

var _ = Describe("Engine", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("partitioned running sums", func() {
		It("should reset the sum on a new partition", func() {
			docs := parseDocs(`{"p":"a","t":1,"v":1}`, `{"p":"a","t":2,"v":2}`, `{"p":"b","t":1,"v":5}`)
			res, err := run(runningSum, docs, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(column(res, "s")).To(Equal([]any{int64(1), int64(3), int64(5)}))
		})

		It("should sum the prefix of the partition", func() {
			docs := []object.Document{}
			for i := 0; i < 50; i++ {
				docs = append(docs, object.Document{"p": "x", "t": int64(i), "v": int64(i * i)})
			}
			res, err := run(runningSum, docs, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(HaveLen(50))
			prefix := int64(0)
			for i, doc := range res {
				prefix += int64(i * i)
				Expect(doc["s"]).To(Equal(prefix))
			}
		})

		It("should not modify the input documents", func() {
			docs := parseDocs(`{"p":"a","t":1,"v":1,"o":{"x":[1]}}`, `{"p":"a","t":2,"v":2}`)
			orig := []object.Document{object.DeepCopy(docs[0]), object.DeepCopy(docs[1])}
			res, err := run(`{"sortBy":{"t":1},"output":{"all":{"$push":"$o"}}}`, docs, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(Equal(orig))

			// the output is independent of the input
			res[0]["all"].([]any)[0].(map[string]any)["x"] = "changed"
			Expect(docs).To(Equal(orig))
			Expect(res[1]["all"]).To(Equal([]any{map[string]any{"x": []any{int64(1)}}, nil}))
		})

		It("should set nested output fields", func() {
			docs := parseDocs(`{"t":1,"v":1,"stats":{"n":0}}`, `{"t":2,"v":2}`)
			res, err := run(`{"sortBy":{"t":1},"output":{"stats.total":{"$sum":"$v"}}}`, docs, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res[0]["stats"]).To(Equal(map[string]any{"n": int64(0), "total": int64(3)}))
			Expect(res[1]["stats"]).To(Equal(map[string]any{"total": int64(3)}))
		})

		It("should be idempotent", func() {
			docs := parseDocs(`{"p":"a","t":1,"v":1}`, `{"p":"a","t":2,"v":2.5}`,
				`{"p":"b","t":1,"v":5}`, `{"p":"b","t":2,"v":"x"}`)
			first, err := run(runningSum, docs, Options{})
			Expect(err).NotTo(HaveOccurred())
			second, err := run(runningSum, docs, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})
	})

	Context("partition boundaries", func() {
		count := `{"partitionBy":"$p","output":{"n":{"$count":{}}}}`

		It("should split the stream where the key changes", func() {
			docs := parseDocs(`{"p":"a"}`, `{"p":"a"}`, `{"p":"b"}`, `{"p":"b"}`, `{"p":"a"}`)
			res, err := run(count, docs, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(column(res, "n")).To(Equal([]any{int64(2), int64(2), int64(2), int64(2), int64(1)}))
		})

		It("should put missing and null keys in the same partition", func() {
			docs := parseDocs(`{"p":null}`, `{}`, `{"p":1}`, `{"p":1.0}`, `{"p":{"a":[1]}}`, `{"p":{"a":[1]}}`)
			res, err := run(count, docs, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(column(res, "n")).To(Equal([]any{int64(2), int64(2), int64(2), int64(2),
				int64(2), int64(2)}))
		})

		It("should handle an empty input", func() {
			res, err := run(count, []object.Document{}, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(BeEmpty())
		})
	})

	Context("constant partition keys", func() {
		docs := parseDocs(`{"p":"a","t":1,"v":1}`, `{"p":"b","t":2,"v":2}`, `{"p":"a","t":3,"v":5}`)
		output := `"sortBy":{"t":1},"output":{"s":{"$sum":"$v","window":{"documents":["unbounded","current"]}},` +
			`"m":{"$max":"$v","window":{"documents":[-1,1]}}}}`

		It("should compute the unpartitioned result for a constant key", func() {
			unpartitioned, err := run(`{`+output, docs, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(column(unpartitioned, "s")).To(Equal([]any{int64(1), int64(3), int64(8)}))

			for _, key := range []string{`{"$add":[1,2]}`, `null`, `"x"`} {
				e := newEngine(`{"partitionBy":`+key+`,`+output, docs, Options{})
				Expect(e.Plan().IsPartitioned()).To(BeFalse())
				res, err := e.Collect(ctx)
				Expect(err).NotTo(HaveOccurred())

				a, err := json.Marshal(unpartitioned)
				Expect(err).NotTo(HaveOccurred())
				b, err := json.Marshal(res)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(b)).To(Equal(string(a)))
			}
		})

		It("should explain the elided partition as a single window stage", func() {
			e := newEngine(`{"partitionBy":{"$add":[1,2]},`+output, docs, Options{})
			res, err := plan.Explain(e.Plan()).Unstructured()
			Expect(err).NotTo(HaveOccurred())
			Expect(res["stages"]).To(HaveLen(1))
			stage := res["stages"].([]any)[0].(map[string]any)
			Expect(stage).To(HaveKey(plan.WindowStageName))
			Expect(stage[plan.WindowStageName]).NotTo(HaveKey("partitionBy"))
		})

		It("should evaluate the constant key when the optimizer is off", func() {
			e := newEngine(`{"partitionBy":{"$add":[1,2]},`+output, docs, Options{DisableOptimizer: true})
			Expect(e.Plan().IsPartitioned()).To(BeTrue())
			res, err := e.Collect(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(column(res, "s")).To(Equal([]any{int64(1), int64(3), int64(8)}))
		})

		DescribeTable("failing the same way with and without the optimizer",
			func(key string, code Code) {
				stage := `{"partitionBy":` + key + `,` + output
				for _, disable := range []bool{false, true} {
					e := newEngine(stage, docs, Options{DisableOptimizer: disable})
					Expect(e.Plan().IsPartitioned()).To(BeTrue())
					res, err := e.Collect(ctx)
					Expect(CodeOf(err)).To(Equal(code), "optimizer disabled: %t", disable)
					Expect(res).To(BeEmpty())
				}
			},
			Entry("array key", `[1,2]`, CodeTypeMismatch),
			Entry("type error", `{"$add":[1,"a"]}`, CodeExpressionFailure),
			Entry("division by zero", `{"$div":[1,0]}`, CodeExpressionFailure),
		)
	})

	Context("document windows", func() {
		docs := parseDocs(`{"t":1,"v":1}`, `{"t":2,"v":2}`, `{"t":3,"v":3}`, `{"t":4,"v":4}`, `{"t":5,"v":5}`)

		DescribeTable("evaluating a window",
			func(acc string, bounds string, expected []any) {
				stage := fmt.Sprintf(`{"sortBy":{"t":1},"output":{"o":{"%s":"$v","window":{"documents":%s}}}}`,
					acc, bounds)
				for _, disable := range []bool{false, true} {
					res, err := run(stage, docs, Options{DisableOptimizer: disable})
					Expect(err).NotTo(HaveOccurred())
					Expect(column(res, "o")).To(Equal(expected))
				}
			},
			Entry("centered sum", "$sum", `[-1,1]`, []any{int64(3), int64(6), int64(9), int64(12), int64(9)}),
			Entry("trailing sum with empty edges", "$sum", `[-3,-2]`,
				[]any{int64(0), int64(0), int64(1), int64(3), int64(5)}),
			Entry("leading sum with empty edges", "$sum", `[1,2]`,
				[]any{int64(5), int64(7), int64(9), int64(5), int64(0)}),
			Entry("sliding push", "$push", `[-1,"current"]`,
				[]any{[]any{int64(1)}, []any{int64(1), int64(2)}, []any{int64(2), int64(3)},
					[]any{int64(3), int64(4)}, []any{int64(4), int64(5)}}),
			Entry("suffix min", "$min", `["current","unbounded"]`,
				[]any{int64(1), int64(2), int64(3), int64(4), int64(5)}),
			Entry("prefix max", "$max", `["unbounded","current"]`,
				[]any{int64(1), int64(2), int64(3), int64(4), int64(5)}),
			Entry("sliding count", "$count", `[-1,1]`,
				[]any{int64(2), int64(3), int64(3), int64(3), int64(2)}),
			Entry("sliding avg", "$avg", `[-1,1]`, []any{1.5, 2.0, 3.0, 4.0, 4.5}),
			Entry("empty avg", "$avg", `[3,4]`, []any{4.5, 5.0, nil, nil, nil}),
			Entry("sliding first", "$first", `[-2,0]`,
				[]any{int64(1), int64(1), int64(1), int64(2), int64(3)}),
			Entry("sliding last", "$last", `[0,2]`,
				[]any{int64(3), int64(4), int64(5), int64(5), int64(5)}),
			Entry("whole partition addToSet", "$addToSet", `["unbounded","unbounded"]`,
				[]any{[]any{int64(1), int64(2), int64(3), int64(4), int64(5)},
					[]any{int64(1), int64(2), int64(3), int64(4), int64(5)},
					[]any{int64(1), int64(2), int64(3), int64(4), int64(5)},
					[]any{int64(1), int64(2), int64(3), int64(4), int64(5)},
					[]any{int64(1), int64(2), int64(3), int64(4), int64(5)}}),
		)

		It("should produce the same output with and without the optimizer", func() {
			input := []object.Document{}
			values := []any{int64(3), 0.5, nil, int64(-7), "x", 1.25, int64(2), int64(9), int64(3)}
			for i, size := range []int{7, 1, 4, 9} {
				for j := 0; j < size; j++ {
					input = append(input, object.Document{
						"p": int64(i),
						"t": int64(j),
						"v": values[(i*3+j)%len(values)],
					})
				}
			}

			frames := []string{`["unbounded","current"]`, `[-2,0]`, `[-1,1]`, `[1,3]`, `[-3,-2]`,
				`["current","unbounded"]`, `["unbounded","unbounded"]`, `["unbounded",2]`, `[-1,"unbounded"]`}
			outputs := []string{}
			for _, k := range window.Kinds() {
				for j, f := range frames {
					outputs = append(outputs, fmt.Sprintf(`"%s_%d":{"%s":"$v","window":{"documents":%s}}`,
						strings.TrimPrefix(k.String(), "@"), j, k.String(), f))
				}
			}
			stage := `{"partitionBy":"$p","sortBy":{"t":1},"output":{` + strings.Join(outputs, ",") + `}}`

			optimized := newEngine(stage, input, Options{})
			Expect(optimized.Plan().Rules).To(ContainElement("IncrementalAccumulator"))
			a, err := optimized.Collect(ctx)
			Expect(err).NotTo(HaveOccurred())

			b, err := run(stage, input, Options{DisableOptimizer: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(a).To(HaveLen(len(input)))
			Expect(a).To(Equal(b))
		})
	})

	Context("failures", func() {
		It("should fail on an array partition key without any output", func() {
			docs := parseDocs(`{"int_field":0,"arr":[1,2]}`)
			e := newEngine(`{"partitionBy":"$arr","output":{"s":{"$sum":"$int_field"}}}`, docs, Options{})
			doc, err := e.Next(ctx)
			Expect(doc).To(BeNil())
			Expect(err).To(HaveOccurred())
			Expect(CodeOf(err)).To(Equal(CodeTypeMismatch))
			Expect(errors.Is(err, ErrTypeMismatch)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("cannot evaluate to value of type array"))
			Expect(err.Error()).To(ContainSubstring("[1,2]"))
			Expect(e.State()).To(Equal(StateFailed))
		})

		It("should not return partial results on a later array key", func() {
			docs := parseDocs(`{"p":1}`, `{"p":2}`, `{"p":[3]}`)
			res, err := run(`{"partitionBy":"$p","output":{"n":{"$count":{}}}}`, docs, Options{})
			Expect(err).To(MatchError(ErrTypeMismatch))
			Expect(res).To(BeNil())
		})

		It("should reject an invalid declaration", func() {
			for _, stage := range []string{
				`{"sortBy":{"t":1},"output":{"s":{"$sum":"$v","window":{"documents":[1,-1]}}}}`,
				`{"sortBy":{"t":1},"output":{"s":{"$sum":"$v","window":{"documents":["now",1]}}}}`,
				`{"output":{"s":{"$sum":"$v","window":{"documents":[-1,1]}}}}`,
				`{"output":{"s":{"$median":"$v"}}}`,
			} {
				_, err := NewEngine(parseStage(stage), NewSliceSource(nil), Options{Log: logger})
				Expect(err).To(HaveOccurred())
				Expect(CodeOf(err)).To(Equal(CodeInvalidSpec))
			}
		})

		It("should report upstream failures", func() {
			boom := errors.New("boom")
			n := 0
			src := SourceFunc(func(_ context.Context) (object.Document, error) {
				n++
				if n > 2 {
					return nil, boom
				}
				return object.Document{"t": int64(n)}, nil
			})

			e, err := NewEngine(parseStage(`{"output":{"n":{"$count":{}}}}`), src, Options{Log: logger})
			Expect(err).NotTo(HaveOccurred())

			_, err = e.Next(ctx)
			Expect(err).To(HaveOccurred())
			Expect(CodeOf(err)).To(Equal(CodeUpstreamFailure))
			Expect(errors.Is(err, boom)).To(BeTrue())
			Expect(e.State()).To(Equal(StateFailed))

			// terminal
			_, err2 := e.Next(ctx)
			Expect(err2).To(Equal(err))
			Expect(n).To(Equal(3))
		})

		It("should fail on an argument that cannot be evaluated", func() {
			docs := parseDocs(`{"v":"x"}`)
			_, err := run(`{"output":{"s":{"$sum":{"$add":[1,"$v"]}}}}`, docs, Options{})
			Expect(CodeOf(err)).To(Equal(CodeExpressionFailure))
		})

		It("should cap the partition buffer", func() {
			docs := []object.Document{}
			for i := 0; i < 10; i++ {
				docs = append(docs, object.Document{"t": int64(i), "v": int64(i)})
			}

			res, err := run(`{"sortBy":{"t":1},"output":{"s":{"$sum":"$v","window":{"documents":[-1,0]}}}}`,
				docs, Options{MaxBufferedDocuments: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(HaveLen(10))

			_, err = run(`{"output":{"s":{"$sum":"$v"}}}`, docs, Options{MaxBufferedDocuments: 3})
			Expect(CodeOf(err)).To(Equal(CodeExceededMemoryLimit))
		})

		It("should refuse to run an uninitialized engine", func() {
			_, err := (&Engine{}).Next(ctx)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("states", func() {
		It("should go through the states of a successful execution", func() {
			docs := parseDocs(`{"p":"a","t":1,"v":1}`, `{"p":"b","t":1,"v":5}`)
			e := newEngine(runningSum, docs, Options{})
			Expect(e.State()).To(Equal(StateReady))

			_, err := e.Next(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(e.State()).To(Equal(StateEmitting))

			_, err = e.Next(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, err = e.Next(ctx)
			Expect(err).To(Equal(io.EOF))
			Expect(e.State()).To(Equal(StateDrained))
			Expect(e.State().IsTerminal()).To(BeTrue())

			_, err = e.Next(ctx)
			Expect(err).To(Equal(io.EOF))
		})

		It("should stop on cancellation", func() {
			docs := parseDocs(`{"t":1,"v":1}`, `{"t":2,"v":2}`, `{"t":3,"v":3}`)
			e := newEngine(`{"sortBy":{"t":1},"output":{"s":{"$sum":"$v","window":{"documents":[-1,0]}}}}`,
				docs, Options{})

			cctx, cancel := context.WithCancel(ctx)
			_, err := e.Next(cctx)
			Expect(err).NotTo(HaveOccurred())

			cancel()
			_, err = e.Next(cctx)
			Expect(err).To(MatchError(context.Canceled))
			Expect(e.State()).To(Equal(StateCanceled))
			Expect(CodeOf(err)).To(BeZero())

			_, err = e.Next(ctx)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Context("metrics", func() {
		It("should count documents and partitions", func() {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			docs := parseDocs(`{"p":"a","t":1,"v":1}`, `{"p":"a","t":2,"v":2}`, `{"p":"b","t":1,"v":5}`)
			_, err := run(runningSum, docs, Options{Metrics: m})
			Expect(err).NotTo(HaveOccurred())

			Expect(testutil.ToFloat64(m.DocumentsIn)).To(Equal(3.0))
			Expect(testutil.ToFloat64(m.DocumentsOut)).To(Equal(3.0))
			Expect(testutil.ToFloat64(m.Partitions)).To(Equal(2.0))
			Expect(testutil.ToFloat64(m.BufferedDocuments)).To(BeZero())
		})

		It("should count failures by code", func() {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			_, err := run(`{"partitionBy":"$arr","output":{}}`, parseDocs(`{"arr":[1]}`), Options{Metrics: m})
			Expect(err).To(HaveOccurred())
			Expect(testutil.ToFloat64(m.Failures.WithLabelValues("TypeMismatch"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.DocumentsOut)).To(BeZero())
		})
	})
})
