package updater

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

var _ = Describe("MergePatchMutation", func() {
	var obj *unstructured.Unstructured

	BeforeEach(func() {
		obj = configMapRef("cm").Empty()
		obj.SetResourceVersion("42")
		obj.Object["data"] = map[string]interface{}{"keep": "a", "drop": "b"}
	})

	It("should merge and delete fields", func() {
		err := MergePatchMutation([]byte(`{"data":{"drop":null,"add":"c"}}`))(obj)
		Expect(err).NotTo(HaveOccurred())

		data, _, _ := unstructured.NestedStringMap(obj.Object, "data")
		Expect(data).To(Equal(map[string]string{"keep": "a", "add": "c"}))
		Expect(obj.GetResourceVersion()).To(Equal("42"))
	})

	It("should refuse to rename the resource", func() {
		err := MergePatchMutation([]byte(`{"metadata":{"name":"other"}}`))(obj)
		Expect(err).To(MatchError(errIdentityChanged))
	})

	It("should keep untouched integer fields intact", func() {
		const large = int64(1)<<53 + 1
		obj.SetGeneration(7)
		Expect(unstructured.SetNestedField(obj.Object, large, "spec", "bytes")).To(Succeed())

		Expect(MergePatchMutation([]byte(`{"data":{"x":"y"}}`))(obj)).To(Succeed())

		bytes, found, err := unstructured.NestedInt64(obj.Object, "spec", "bytes")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(bytes).To(Equal(large))
		Expect(obj.GetGeneration()).To(Equal(int64(7)))

		value, _, _ := unstructured.NestedString(obj.Object, "data", "x")
		Expect(value).To(Equal("y"))
	})

	It("should leave the resource untouched when the rename is refused", func() {
		err := MergePatchMutation([]byte(`{"metadata":{"name":"other"},"data":{"keep":"z"}}`))(obj)
		Expect(err).To(MatchError(errIdentityChanged))
		Expect(obj.GetName()).To(Equal("cm"))

		value, _, _ := unstructured.NestedString(obj.Object, "data", "keep")
		Expect(value).To(Equal("a"))
	})

	It("should reject malformed patches", func() {
		err := MergePatchMutation([]byte(`{not json`))(obj)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("SetNestedField", func() {
	It("should set a nested string", func() {
		obj := configMapRef("cm").Empty()
		Expect(SetNestedField("v", "data", "k")(obj)).To(Succeed())

		value, found, err := unstructured.NestedString(obj.Object, "data", "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(value).To(Equal("v"))
	})

	It("should widen Go integers to int64", func() {
		obj := configMapRef("cm").Empty()
		Expect(SetNestedField(3, "spec", "replicas")(obj)).To(Succeed())
		Expect(SetNestedField(int32(4), "spec", "partition")(obj)).To(Succeed())

		replicas, found, err := unstructured.NestedInt64(obj.Object, "spec", "replicas")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(replicas).To(Equal(int64(3)))

		partition, _, err := unstructured.NestedInt64(obj.Object, "spec", "partition")
		Expect(err).NotTo(HaveOccurred())
		Expect(partition).To(Equal(int64(4)))
	})
})
