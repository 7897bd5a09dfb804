package readiness

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	testingclock "k8s.io/utils/clock/testing"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"github.com/llm-d/llm-d-fleet-consistency/internal/poller"
	"github.com/llm-d/llm-d-fleet-consistency/internal/resource"
)

const testNamespace = "test-ns"

var podGVK = schema.GroupVersionKind{Version: "v1", Kind: "Pod"}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	_ = clientgoscheme.AddToScheme(scheme)
	return scheme
}

func podRef(name string) resource.Ref {
	return resource.Ref{GVK: podGVK, Namespace: testNamespace, Name: name}
}

func makePod(name string, uid types.UID, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: testNamespace, UID: uid},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

// sequenceStore serves a fixed sequence of observations of a single resource;
// the last one repeats. A nil entry is served as NotFound.
type sequenceStore struct {
	resource.Store

	mu    sync.Mutex
	steps []Observation
	reads int
}

func (s *sequenceStore) Get(_ context.Context, ref resource.Ref) (*unstructured.Unstructured, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	step := s.steps[min(s.reads, len(s.steps)-1)]
	s.reads++
	if !step.Found {
		return nil, apierrors.NewNotFound(schema.GroupResource{Resource: "pods"}, ref.Name)
	}
	return step.Object.DeepCopy(), nil
}

func (s *sequenceStore) observed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

var _ = Describe("Waiter", func() {
	var (
		ctx context.Context
		p   *poller.Poller
	)

	BeforeEach(func() {
		ctx = context.Background()
		p = poller.New(time.Millisecond, 5*time.Second)
	})

	Context("waiting for deletion", func() {
		It("should complete on the first observation when already deleted", func() {
			var gets atomic.Int32
			k8sClient := fake.NewClientBuilder().
				WithScheme(newScheme()).
				WithInterceptorFuncs(interceptor.Funcs{
					Get: func(ctx context.Context, c client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
						gets.Add(1)
						return c.Get(ctx, key, obj, opts...)
					},
				}).
				Build()
			w := New(resource.NewClientStore(k8sClient), p)

			Expect(w.WaitForDeletion(ctx, podRef("gone"))).To(Succeed())
			Expect(gets.Load()).To(BeEquivalentTo(1))
		})

		It("should wait until the store stops serving the resource", func() {
			store := &sequenceStore{steps: []Observation{
				podObservation("a", nil),
				podObservation("a", nil),
				{},
			}}
			w := New(store, p)

			Expect(w.WaitForDeletion(ctx, podRef("vm-0"))).To(Succeed())
			Expect(store.observed()).To(Equal(3))
		})

		It("should delete and wait", func() {
			k8sClient := fake.NewClientBuilder().
				WithScheme(newScheme()).
				WithObjects(makePod("vm-0", "a", corev1.PodRunning)).
				Build()
			w := New(resource.NewClientStore(k8sClient), p)

			Expect(w.DeleteAndWait(ctx, podRef("vm-0"))).To(Succeed())

			err := k8sClient.Get(ctx, client.ObjectKey{Namespace: testNamespace, Name: "vm-0"}, &corev1.Pod{})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
		})

		It("should treat deleting an absent resource as done", func() {
			w := New(resource.NewClientStore(fake.NewClientBuilder().WithScheme(newScheme()).Build()), p)
			Expect(w.DeleteAndWait(ctx, podRef("never-existed"))).To(Succeed())
		})
	})

	Context("waiting for a readiness marker", func() {
		It("should tolerate a missing status until the marker appears", func() {
			store := &sequenceStore{steps: []Observation{
				{},
				podObservation("a", nil),
				podObservation("a", map[string]interface{}{"progress": int64(50)}),
				podObservation("a", map[string]interface{}{"storageClassName": "longhorn"}),
			}}
			w := New(store, p)

			obs, err := w.WaitForField(ctx, podRef("vm-0"), []string{"status", "storageClassName"})
			Expect(err).NotTo(HaveOccurred())
			Expect(store.observed()).To(Equal(4))

			class, _, _ := unstructured.NestedString(obs.Object.Object, "status", "storageClassName")
			Expect(class).To(Equal("longhorn"))
		})

		It("should time out carrying the last observation", func() {
			store := &sequenceStore{steps: []Observation{podObservation("a", nil)}}
			w := New(store, poller.New(5*time.Millisecond, 50*time.Millisecond))

			_, err := w.WaitForField(ctx, podRef("vm-0"), []string{"status", "storageClassName"})
			Expect(err).To(MatchError(poller.ErrTimeout))

			var timeoutErr *poller.TimeoutError
			Expect(errors.As(err, &timeoutErr)).To(BeTrue())
			Expect(timeoutErr.Operation).To(Equal("wait for field of"))
			Expect(timeoutErr.Target).To(Equal("Pod test-ns/vm-0"))
			Expect(timeoutErr.LastObserved).To(BeAssignableToTypeOf(Observation{}))
			Expect(timeoutErr.LastObserved.(Observation).Found).To(BeTrue())
		})

		It("should abort on a store failure other than NotFound", func() {
			k8sClient := fake.NewClientBuilder().
				WithScheme(newScheme()).
				WithInterceptorFuncs(interceptor.Funcs{
					Get: func(context.Context, client.WithWatch, client.ObjectKey, client.Object, ...client.GetOption) error {
						return apierrors.NewUnauthorized("session expired")
					},
				}).
				Build()
			w := New(resource.NewClientStore(k8sClient), p)

			_, err := w.Wait(ctx, podRef("vm-0"), Exists)
			Expect(apierrors.IsUnauthorized(err)).To(BeTrue())
			Expect(err).NotTo(MatchError(poller.ErrTimeout))
		})

		It("should create and wait for the resource to appear", func() {
			k8sClient := fake.NewClientBuilder().WithScheme(newScheme()).Build()
			w := New(resource.NewClientStore(k8sClient), p)

			obj := podRef("vm-1").Empty()
			obs, err := w.CreateAndWait(ctx, obj, Exists)
			Expect(err).NotTo(HaveOccurred())
			Expect(obs.Object.GetName()).To(Equal("vm-1"))
			Expect(obs.Object.GetResourceVersion()).NotTo(BeEmpty())
		})

		It("should reject creating a resource that already exists", func() {
			k8sClient := fake.NewClientBuilder().
				WithScheme(newScheme()).
				WithObjects(makePod("vm-0", "a", corev1.PodRunning)).
				Build()
			w := New(resource.NewClientStore(k8sClient), p)

			_, err := w.CreateAndWait(ctx, podRef("vm-0").Empty(), Exists)
			Expect(apierrors.IsAlreadyExists(err)).To(BeTrue())
		})
	})

	Context("waiting for a restart", func() {
		It("should require both a new uid and the Running phase", func() {
			store := &sequenceStore{steps: []Observation{
				podObservation("a", map[string]interface{}{"phase": "Running"}),
				{},
				podObservation("b", map[string]interface{}{"phase": "Pending"}),
				podObservation("b", map[string]interface{}{"phase": "Running"}),
			}}
			w := New(store, p)

			obs, err := w.WaitForRestart(ctx, podRef("vm-0"), "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(obs.Object.GetUID()).To(BeEquivalentTo("b"))
			Expect(store.observed()).To(Equal(4))
		})

		It("should not observe before the grace delay elapses", func() {
			fakeClock := testingclock.NewFakeClock(time.Now())
			store := &sequenceStore{steps: []Observation{
				podObservation("b", map[string]interface{}{"phase": "Running"}),
			}}
			w := New(store, &poller.Poller{Interval: time.Second, Timeout: time.Minute, Clock: fakeClock})

			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := w.WaitForRestart(ctx, podRef("vm-0"), "a", WithInitialDelay(2*time.Minute))
				done <- err
			}()

			Eventually(fakeClock.HasWaiters).Should(BeTrue())
			Consistently(store.observed, 50*time.Millisecond).Should(BeZero())

			fakeClock.Step(2 * time.Minute)
			Eventually(done).Should(Receive(BeNil()))
			Expect(store.observed()).To(Equal(1))
		})

		It("should stop the grace delay when the context is cancelled", func() {
			store := &sequenceStore{steps: []Observation{{}}}
			w := New(store, p)
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := w.WaitForRestart(cancelled, podRef("vm-0"), "a", WithInitialDelay(time.Hour))
			Expect(err).To(MatchError(context.Canceled))
			Expect(store.observed()).To(BeZero())
		})
	})
})

var _ = Describe("WaitUntil", func() {
	It("should return the first state satisfying the predicate", func() {
		var calls atomic.Int32
		state, err := WaitUntil(context.Background(), poller.New(time.Millisecond, time.Second), "counter",
			func(context.Context) (int32, error) { return calls.Add(1), nil },
			func(n int32) bool { return n >= 3 })

		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeEquivalentTo(3))
	})

	It("should carry the last state on timeout", func() {
		_, err := WaitUntil(context.Background(), poller.New(5*time.Millisecond, 30*time.Millisecond), "counter",
			func(context.Context) (string, error) { return "pending", nil },
			func(s string) bool { return s == "done" })

		var timeoutErr *poller.TimeoutError
		Expect(errors.As(err, &timeoutErr)).To(BeTrue())
		Expect(timeoutErr.Operation).To(Equal("wait for"))
		Expect(timeoutErr.LastObserved).To(Equal("pending"))
	})
})
