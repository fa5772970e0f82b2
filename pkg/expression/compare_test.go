package expression_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/apimachinery/pkg/util/json"

	"github.com/l7mp/windowfields/pkg/expression"
)

var _ = Describe("Value ordering", func() {
	It("should tag values with their kind", func() {
		Expect(expression.KindOf(nil)).To(Equal(expression.KindNull))
		Expect(expression.KindOf(int64(1))).To(Equal(expression.KindInt))
		Expect(expression.KindOf(uint64(1))).To(Equal(expression.KindInt))
		Expect(expression.KindOf(1.5)).To(Equal(expression.KindDouble))
		Expect(expression.KindOf("a")).To(Equal(expression.KindString))
		Expect(expression.KindOf(true)).To(Equal(expression.KindBool))
		Expect(expression.KindOf(expression.Unstructured{})).To(Equal(expression.KindObject))
		Expect(expression.KindOf([]any{})).To(Equal(expression.KindArray))
		Expect(expression.KindOf([]string{"x"})).To(Equal(expression.KindArray))
		Expect(expression.KindArray.String()).To(Equal("array"))
		Expect(expression.KindDouble.IsNumeric()).To(BeTrue())
		Expect(expression.KindString.IsNumeric()).To(BeFalse())
	})

	It("should compare numbers by value", func() {
		Expect(expression.Compare(int64(1), 1.0)).To(Equal(0))
		Expect(expression.Compare(int64(1), 1.5)).To(Equal(-1))
		Expect(expression.Compare(2.5, int64(2))).To(Equal(1))
		Expect(expression.Compare(math.NaN(), math.Inf(-1))).To(Equal(-1))
		Expect(expression.Equal(int64(3), int32(3))).To(BeTrue())
	})

	It("should compare large integers and doubles exactly", func() {
		Expect(expression.Compare(int64(9007199254740993), 9007199254740992.0)).To(Equal(1))
		Expect(expression.Compare(9007199254740992.0, int64(9007199254740993))).To(Equal(-1))
		Expect(expression.Equal(int64(9007199254740992), 9007199254740992.0)).To(BeTrue())
		Expect(expression.Compare(int64(math.MaxInt64), math.Exp2(63))).To(Equal(-1))
		Expect(expression.Compare(int64(math.MinInt64), -math.Exp2(63))).To(Equal(0))
		Expect(expression.Compare(int64(-3), -2.5)).To(Equal(-1))
		Expect(expression.Compare(int64(-2), -2.5)).To(Equal(1))
		Expect(expression.Compare(int64(0), math.NaN())).To(Equal(1))
		Expect(expression.Compare(math.Inf(-1), int64(math.MinInt64))).To(Equal(-1))
	})

	It("should order values of different kinds", func() {
		Expect(expression.Compare(nil, int64(0))).To(Equal(-1))
		Expect(expression.Compare(int64(100), "a")).To(Equal(-1))
		Expect(expression.Compare("z", expression.Unstructured{})).To(Equal(-1))
		Expect(expression.Compare(expression.Unstructured{}, []any{})).To(Equal(-1))
		Expect(expression.Compare([]any{}, false)).To(Equal(-1))
	})

	It("should compare objects in sorted key order", func() {
		a := expression.Unstructured{"b": int64(1), "a": int64(2)}
		b := expression.Unstructured{"a": 2.0, "b": int64(1)}
		Expect(expression.Compare(a, b)).To(Equal(0))
		Expect(expression.Compare(a, expression.Unstructured{"a": int64(2), "b": int64(2)})).To(Equal(-1))
		Expect(expression.Compare(a, expression.Unstructured{"a": int64(2)})).To(Equal(1))
	})

	It("should compare lists element-wise", func() {
		Expect(expression.Compare([]any{int64(1), "a"}, []any{1.0, "a"})).To(Equal(0))
		Expect(expression.Compare([]any{int64(1)}, []any{int64(1), int64(0)})).To(Equal(-1))
		Expect(expression.Compare([]any{"b"}, []any{"a", "z"})).To(Equal(1))
	})

	It("should compare booleans", func() {
		Expect(expression.Compare(false, true)).To(Equal(-1))
		Expect(expression.Equal(true, true)).To(BeTrue())
	})
})

var _ = Describe("Constant expressions", func() {
	isConst := func(jsonData string) bool {
		var exp expression.Expression
		err := json.Unmarshal([]byte(jsonData), &exp)
		Expect(err).NotTo(HaveOccurred())
		return expression.IsConstant(&exp)
	}

	It("should recognize literals as constants", func() {
		Expect(expression.IsConstant(nil)).To(BeTrue())
		Expect(isConst("null")).To(BeTrue())
		Expect(isConst(`"constant"`)).To(BeTrue())
		Expect(isConst("12")).To(BeTrue())
		Expect(isConst("[1, 2, \"x\"]")).To(BeTrue())
		Expect(isConst(`{"a": 1, "b": [true]}`)).To(BeTrue())
	})

	It("should recognize operators over constants as constants", func() {
		Expect(isConst(`{"$add": [1, 2]}`)).To(BeTrue())
		Expect(isConst(`{"@concat": ["a", {"@len": [1, 2]}]}`)).To(BeTrue())
	})

	It("should not consider field references constant", func() {
		Expect(isConst(`"$p"`)).To(BeFalse())
		Expect(isConst(`"$.spec.a"`)).To(BeFalse())
		Expect(isConst(`{"$add": [1, "$v"]}`)).To(BeFalse())
		Expect(isConst(`{"a": "$p"}`)).To(BeFalse())
		Expect(isConst(`{"@string": "x"}`)).To(BeFalse())
	})

	It("should not consider list operators constant", func() {
		Expect(isConst(`{"@map": [{"@add": ["$$", 1]}, [1, 2]]}`)).To(BeFalse())
	})
})

var _ = Describe("JSONPath helpers", func() {
	It("should normalize field paths", func() {
		Expect(expression.NormalizeFieldPath("$a.b")).To(Equal("$.a.b"))
		Expect(expression.NormalizeFieldPath("$.a")).To(Equal("$.a"))
		Expect(expression.NormalizeFieldPath("$.")).To(Equal("$"))
		Expect(expression.NormalizeFieldPath("$['a']")).To(Equal("$['a']"))
	})

	It("should set plain and nested keys", func() {
		obj := expression.Unstructured{"a": int64(1)}
		Expect(expression.SetJSONPath("b", "x", obj)).To(Succeed())
		Expect(expression.SetJSONPath("c.d", int64(2), obj)).To(Succeed())
		Expect(expression.SetJSONPath("$.e", true, obj)).To(Succeed())
		Expect(obj).To(Equal(expression.Unstructured{
			"a": int64(1),
			"b": "x",
			"c": expression.Unstructured{"d": int64(2)},
			"e": true,
		}))
	})

	It("should refuse to set a key on a non-object", func() {
		Expect(expression.SetJSONPath("a", 1, []any{})).NotTo(Succeed())
	})

	It("should get values from the subject", func() {
		v, err := expression.GetJSONPath(expression.EvalCtx{Object: expression.Unstructured{"a": int64(1)}, Subject: expression.Unstructured{"a": int64(2)}, Log: logger}, "$$.a")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(2)))
	})
})
