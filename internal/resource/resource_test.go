package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/llm-d/llm-d-fleet-consistency/internal/poller"
)

const testNamespace = "test-ns"

var configMapGVK = schema.GroupVersionKind{Version: "v1", Kind: "ConfigMap"}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(scheme)
	return scheme
}

func makeConfigMap(name string, data map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: testNamespace},
		Data:       data,
	}
}

var _ = Describe("Ref", func() {
	It("should render namespaced and cluster-scoped identities", func() {
		ref := Ref{GVK: configMapGVK, Namespace: testNamespace, Name: "cm"}
		Expect(ref.String()).To(Equal("ConfigMap test-ns/cm"))

		node := Ref{GVK: schema.GroupVersionKind{Version: "v1", Kind: "Node"}, Name: "node-1"}
		Expect(node.String()).To(Equal("Node node-1"))
	})

	It("should parse grouped apiVersions", func() {
		ref, err := NewRef("apps/v1", "Deployment", testNamespace, "web")
		Expect(err).NotTo(HaveOccurred())
		Expect(ref.GVK).To(Equal(schema.GroupVersionKind{Group: "apps", Version: "v1", Kind: "Deployment"}))
	})

	It("should reject references without kind or name", func() {
		_, err := NewRef("v1", "", testNamespace, "cm")
		Expect(err).To(MatchError(errMissingKind))

		_, err = NewRef("v1", "ConfigMap", testNamespace, "")
		Expect(err).To(MatchError(errMissingName))
	})

	It("should reject malformed apiVersions", func() {
		_, err := NewRef("a/b/c", "ConfigMap", testNamespace, "cm")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Classify", func() {
	gr := schema.GroupResource{Resource: "configmaps"}

	It("should map store responses onto error classes", func() {
		Expect(Classify(nil)).To(Equal(Success))
		Expect(Classify(apierrors.NewConflict(gr, "cm", errors.New("stale")))).To(Equal(Conflict))
		Expect(Classify(apierrors.NewNotFound(gr, "cm"))).To(Equal(NotFound))
		Expect(Classify(apierrors.NewBadRequest("invalid"))).To(Equal(Fatal))
		Expect(Classify(errors.New("connection refused"))).To(Equal(Fatal))
	})

	It("should name each class", func() {
		Expect(Conflict.String()).To(Equal("conflict"))
		Expect(NotFound.String()).To(Equal("not-found"))
		Expect(Fatal.String()).To(Equal("fatal"))
	})
})

var _ = Describe("ClientStore", func() {
	var (
		ctx   context.Context
		store *ClientStore
		ref   Ref
	)

	BeforeEach(func() {
		ctx = context.Background()
		k8sClient := fake.NewClientBuilder().
			WithScheme(newScheme()).
			WithObjects(makeConfigMap("cm", map[string]string{"key": "value"})).
			Build()
		store = NewClientStore(k8sClient)
		ref = Ref{GVK: configMapGVK, Namespace: testNamespace, Name: "cm"}
	})

	It("should read the document with its version", func() {
		obj, err := store.Get(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(obj.GetResourceVersion()).NotTo(BeEmpty())
		Expect(obj.Object["data"]).To(HaveKeyWithValue("key", "value"))
	})

	It("should report absent resources as NotFound", func() {
		_, err := store.Get(ctx, Ref{GVK: configMapGVK, Namespace: testNamespace, Name: "missing"})
		Expect(Classify(err)).To(Equal(NotFound))
	})

	It("should reject an update carrying a stale version", func() {
		current, err := store.Get(ctx, ref)
		Expect(err).NotTo(HaveOccurred())

		first := current.DeepCopy()
		first.Object["data"] = map[string]interface{}{"key": "first"}
		_, err = store.Update(ctx, first)
		Expect(err).NotTo(HaveOccurred())

		stale := current.DeepCopy()
		stale.Object["data"] = map[string]interface{}{"key": "second"}
		_, err = store.Update(ctx, stale)
		Expect(Classify(err)).To(Equal(Conflict))
	})

	It("should create and delete resources", func() {
		obj := Ref{GVK: configMapGVK, Namespace: testNamespace, Name: "new"}.Empty()
		created, err := store.Create(ctx, obj)
		Expect(err).NotTo(HaveOccurred())
		Expect(created.GetResourceVersion()).NotTo(BeEmpty())

		Expect(store.Delete(ctx, RefFor(created))).To(Succeed())
		_, err = store.Get(ctx, RefFor(created))
		Expect(Classify(err)).To(Equal(NotFound))
	})

	It("should treat deleting an absent resource as success", func() {
		Expect(store.Delete(ctx, Ref{GVK: configMapGVK, Namespace: testNamespace, Name: "missing"})).To(Succeed())
	})
})

var _ = Describe("LatestVersion", func() {
	var (
		ctx context.Context
		ref Ref
	)

	BeforeEach(func() {
		ctx = context.Background()
		ref = Ref{GVK: configMapGVK, Namespace: testNamespace, Name: "cm"}
	})

	It("should wait until a freshly created resource becomes visible", func() {
		var gets atomic.Int32
		k8sClient := fake.NewClientBuilder().
			WithScheme(newScheme()).
			WithObjects(makeConfigMap("cm", nil)).
			WithInterceptorFuncs(interceptor.Funcs{
				Get: func(ctx context.Context, c client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
					if gets.Add(1) <= 2 {
						return apierrors.NewNotFound(schema.GroupResource{Resource: "configmaps"}, key.Name)
					}
					return c.Get(ctx, key, obj, opts...)
				},
			}).
			Build()

		version, err := LatestVersion(ctx, NewClientStore(k8sClient), poller.New(time.Millisecond, 5*time.Second), ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(version).NotTo(BeEmpty())
		Expect(gets.Load()).To(BeEquivalentTo(3))
	})

	It("should time out when the resource never appears", func() {
		k8sClient := fake.NewClientBuilder().WithScheme(newScheme()).Build()

		_, err := LatestVersion(ctx, NewClientStore(k8sClient), poller.New(5*time.Millisecond, 50*time.Millisecond), ref)
		Expect(err).To(MatchError(poller.ErrTimeout))

		var timeoutErr *poller.TimeoutError
		Expect(errors.As(err, &timeoutErr)).To(BeTrue())
		Expect(timeoutErr.Target).To(Equal("ConfigMap test-ns/cm"))
	})

	It("should abort on fatal read errors", func() {
		k8sClient := fake.NewClientBuilder().
			WithScheme(newScheme()).
			WithInterceptorFuncs(interceptor.Funcs{
				Get: func(context.Context, client.WithWatch, client.ObjectKey, client.Object, ...client.GetOption) error {
					return apierrors.NewForbidden(schema.GroupResource{Resource: "configmaps"}, "cm", errors.New("denied"))
				},
			}).
			Build()

		_, err := LatestVersion(ctx, NewClientStore(k8sClient), poller.New(time.Millisecond, time.Second), ref)
		Expect(apierrors.IsForbidden(err)).To(BeTrue())
	})
})
