package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/goleak"

	"github.com/l7mp/windowfields/pkg/object"
)

var _ = Describe("Sources", func() {
	It("should stream a slice", func() {
		src := NewSliceSource(parseDocs(`{"a":1}`, `{"a":2}`))
		docs, err := Drain(context.Background(), src)
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(Equal([]object.Document{{"a": int64(1)}, {"a": int64(2)}}))

		_, err = src.Next(context.Background())
		Expect(err).To(Equal(io.EOF))
	})

	It("should decode JSON lines", func() {
		src := NewJSONLinesSource(strings.NewReader("{\"a\":1}\n\n  \n{\"a\":2.5,\"b\":[1]}\n"))
		docs, err := Drain(context.Background(), src)
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(Equal([]object.Document{
			{"a": int64(1)},
			{"a": 2.5, "b": []any{int64(1)}},
		}))
	})

	It("should report the line of a malformed document", func() {
		src := NewJSONLinesSource(strings.NewReader("{\"a\":1}\n{\"a\":\n"))
		_, err := Drain(context.Background(), src)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("line 2"))
	})

	It("should fail the engine on a malformed document", func() {
		src := NewJSONLinesSource(strings.NewReader("{\"t\":1}\n[1,2]\n"))
		e, err := NewEngine(parseStage(`{"output":{"n":{"$count":{}}}}`), src, Options{Log: logger})
		Expect(err).NotTo(HaveOccurred())
		_, err = e.Collect(context.Background())
		Expect(errors.Is(err, ErrUpstreamFailure)).To(BeTrue())
	})

	It("should stream a channel until it is closed", func() {
		ch := make(chan object.Document, 2)
		ch <- object.Document{"a": int64(1)}
		ch <- object.Document{"a": int64(2)}
		close(ch)

		docs, err := Drain(context.Background(), NewChannelSource(ch))
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(2))
	})

	It("should stop reading a channel on cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewChannelSource(make(chan object.Document)).Next(ctx)
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("Streaming", func() {
	It("should stream the output of the engine", func() {
		opt := goleak.IgnoreCurrent()

		ch := make(chan object.Document)
		go func() {
			defer close(ch)
			for _, doc := range parseDocs(`{"p":"a","t":1,"v":1}`, `{"p":"a","t":2,"v":2}`,
				`{"p":"b","t":1,"v":5}`) {
				ch <- doc
			}
		}()

		e, err := NewEngine(parseStage(runningSum), NewChannelSource(ch), Options{Log: logger})
		Expect(err).NotTo(HaveOccurred())

		sums := []any{}
		for res := range e.Stream(context.Background()) {
			Expect(res.Err).NotTo(HaveOccurred())
			sums = append(sums, res.Document["s"])
		}
		Expect(sums).To(Equal([]any{int64(1), int64(3), int64(5)}))
		Expect(e.State()).To(Equal(StateDrained))

		goleak.VerifyNone(GinkgoT(), opt)
	})

	It("should release the partition buffer when canceled while sending", func() {
		opt := goleak.IgnoreCurrent()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		e := newEngine(`{"sortBy":{"t":1},"output":{"s":{"$sum":"$v","window":{"documents":[-1,1]}}}}`,
			parseDocs(`{"t":1,"v":1}`, `{"t":2,"v":2}`, `{"t":3,"v":3}`, `{"t":4,"v":4}`, `{"t":5,"v":5}`),
			Options{})
		ch := e.Stream(ctx)

		res := <-ch
		Expect(res.Err).NotTo(HaveOccurred())
		Expect(res.Document["s"]).To(Equal(int64(3)))

		cancel()
		for range ch {
		}

		Expect(e.State()).To(Equal(StateCanceled))
		Expect(e.Err()).To(MatchError(context.Canceled))
		Expect(e.buf.Buffered()).To(BeZero())

		goleak.VerifyNone(GinkgoT(), opt)
	})

	It("should not leak goroutines on cancellation", func() {
		opt := goleak.IgnoreCurrent()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// an endless producer
		ch := make(chan object.Document)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := int64(0); ; i++ {
				select {
				case ch <- object.Document{"t": i, "v": i}:
				case <-ctx.Done():
					return
				}
			}
		}()

		e, err := NewEngine(parseStage(`{"sortBy":{"t":1},"output":{`+
			`"s":{"$sum":"$v","window":{"documents":[-2,0]}}}}`), NewChannelSource(ch), Options{Log: logger})
		Expect(err).NotTo(HaveOccurred())

		n := 0
		for res := range e.Stream(ctx) {
			if res.Err != nil {
				Expect(res.Err).To(MatchError(context.Canceled))
				continue
			}
			n++
			if n == 10 {
				cancel()
			}
		}
		Eventually(done).Should(BeClosed())

		Expect(n).To(BeNumerically(">=", 10))
		Expect(e.State()).To(Equal(StateCanceled))

		goleak.VerifyNone(GinkgoT(), opt)
	})
})
