package pipeline

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/windowfields/pkg/plan"
)

var _ = Describe("Sorting", func() {
	compile := func(stage string) *plan.Plan {
		p, err := plan.New(parseStage(stage))
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	It("should sort by partition key then sort key", func() {
		p := compile(`{"partitionBy":"$p","sortBy":[{"t":-1},{"u":1}],"output":{}}`)
		docs := parseDocs(`{"p":"b","t":1,"u":1}`, `{"p":"a","t":1,"u":2}`, `{"p":"a","t":2,"u":9}`,
			`{"p":"a","t":1,"u":1}`, `{"p":null,"t":5,"u":0}`)
		Expect(SortDocuments(docs, p, logger)).To(Succeed())
		Expect(docs).To(Equal(parseDocs(`{"p":null,"t":5,"u":0}`, `{"p":"a","t":2,"u":9}`,
			`{"p":"a","t":1,"u":1}`, `{"p":"a","t":1,"u":2}`, `{"p":"b","t":1,"u":1}`)))
	})

	It("should keep the input order of equal documents", func() {
		p := compile(`{"output":{}}`)
		docs := parseDocs(`{"i":2}`, `{"i":1}`, `{"i":3}`)
		Expect(SortDocuments(docs, p, logger)).To(Succeed())
		Expect(docs).To(Equal(parseDocs(`{"i":2}`, `{"i":1}`, `{"i":3}`)))
	})

	It("should reject an array partition key", func() {
		p := compile(`{"partitionBy":"$p","output":{}}`)
		err := SortDocuments(parseDocs(`{"p":1}`, `{"p":[1]}`), p, logger)
		Expect(CodeOf(err)).To(Equal(CodeTypeMismatch))
	})

	It("should feed an engine with unsorted input", func() {
		p := compile(runningSum)
		src, err := NewSortedSource(context.Background(), NewSliceSource(parseDocs(
			`{"p":"b","t":1,"v":5}`, `{"p":"a","t":2,"v":2}`, `{"p":"a","t":1,"v":1}`)), p, logger)
		Expect(err).NotTo(HaveOccurred())

		e, err := NewEngineFromPlan(p, src, Options{Log: logger})
		Expect(err).NotTo(HaveOccurred())
		res, err := e.Collect(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(column(res, "s")).To(Equal([]any{int64(1), int64(3), int64(5)}))
	})
})
