// Package kubernetes provides a bind.Backend storing the value document
// under one data key of a ConfigMap or Secret, watched with the Watch API.
package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zoobzio/bind"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// ResourceType specifies the kind of resource holding the document.
type ResourceType int

const (
	// ConfigMap stores the document in a ConfigMap.
	ConfigMap ResourceType = iota
	// Secret stores the document in a Secret.
	Secret
)

// DefaultRetryInterval is the pause before re-establishing a failed watch.
const DefaultRetryInterval = time.Second

var errWatchClosed = errors.New("watch channel closed")

// Backend stores the document under key in the named resource. The
// resource is created on the first save when absent.
type Backend struct {
	client       kubernetes.Interface
	namespace    string
	name         string
	key          string
	resourceType ResourceType
	retry        time.Duration
}

// Option configures a Backend.
type Option func(*Backend)

// WithResourceType sets the resource kind.
// Defaults to ConfigMap.
func WithResourceType(rt ResourceType) Option {
	return func(b *Backend) {
		b.resourceType = rt
	}
}

// WithRetryInterval sets the pause between watch reconnects.
func WithRetryInterval(d time.Duration) Option {
	return func(b *Backend) {
		b.retry = d
	}
}

// New creates a Backend for the given resource and data key.
func New(client kubernetes.Interface, namespace, name, key string, opts ...Option) *Backend {
	b := &Backend{
		client:       client,
		namespace:    namespace,
		name:         name,
		key:          key,
		resourceType: ConfigMap,
		retry:        DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load returns the document, or nil when the resource or key is absent.
func (b *Backend) Load(ctx context.Context) ([]byte, error) {
	value, _, err := b.getValue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", b.namespace, b.name, err)
	}
	return value, nil
}

// Save writes the document under the key, creating the resource when
// absent. Other keys in the resource are left untouched.
func (b *Backend) Save(ctx context.Context, data []byte) error {
	var err error
	if b.resourceType == ConfigMap {
		err = b.saveConfigMap(ctx, data)
	} else {
		err = b.saveSecret(ctx, data)
	}
	if err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", b.namespace, b.name, err)
	}
	return nil
}

func (b *Backend) saveConfigMap(ctx context.Context, data []byte) error {
	api := b.client.CoreV1().ConfigMaps(b.namespace)
	cm, err := api.Get(ctx, b.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = api.Create(ctx, &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: b.name, Namespace: b.namespace},
			Data:       map[string]string{b.key: string(data)},
		}, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	cm.Data[b.key] = string(data)
	_, err = api.Update(ctx, cm, metav1.UpdateOptions{})
	return err
}

func (b *Backend) saveSecret(ctx context.Context, data []byte) error {
	api := b.client.CoreV1().Secrets(b.namespace)
	secret, err := api.Get(ctx, b.name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = api.Create(ctx, &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: b.name, Namespace: b.namespace},
			Data:       map[string][]byte{b.key: data},
		}, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if secret.Data == nil {
		secret.Data = map[string][]byte{}
	}
	secret.Data[b.key] = data
	_, err = api.Update(ctx, secret, metav1.UpdateOptions{})
	return err
}

// Watch begins watching the resource and returns a channel that emits the
// document whenever it changes. The current document is emitted first when
// present. Failed watches are re-established after the retry interval.
func (b *Backend) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		for {
			if err := b.watchLoop(ctx, out); err == nil || ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.retry):
			}
		}
	}()

	return out, nil
}

func (b *Backend) watchLoop(ctx context.Context, out chan<- []byte) error {
	value, resourceVersion, err := b.getValue(ctx)
	if err != nil {
		return err
	}

	opts := metav1.ListOptions{
		FieldSelector:   fmt.Sprintf("metadata.name=%s", b.name),
		ResourceVersion: resourceVersion,
		Watch:           true,
	}

	var watcher watch.Interface
	if b.resourceType == ConfigMap {
		watcher, err = b.client.CoreV1().ConfigMaps(b.namespace).Watch(ctx, opts)
	} else {
		watcher, err = b.client.CoreV1().Secrets(b.namespace).Watch(ctx, opts)
	}
	if err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	defer watcher.Stop()

	if value != nil {
		select {
		case out <- value:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.ResultChan():
			if !ok {
				return errWatchClosed
			}

			switch event.Type {
			case watch.Error:
				return apierrors.FromObject(event.Object)
			case watch.Deleted:
				continue
			}

			value := b.extractValue(event.Object)
			if value != nil {
				select {
				case out <- value:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// getValue reads the document and the resource version to watch from. A
// missing resource yields no document and an empty version.
func (b *Backend) getValue(ctx context.Context) ([]byte, string, error) {
	var obj runtime.Object
	var version string
	var err error
	if b.resourceType == ConfigMap {
		var cm *corev1.ConfigMap
		cm, err = b.client.CoreV1().ConfigMaps(b.namespace).Get(ctx, b.name, metav1.GetOptions{})
		if err == nil {
			obj, version = cm, cm.ResourceVersion
		}
	} else {
		var secret *corev1.Secret
		secret, err = b.client.CoreV1().Secrets(b.namespace).Get(ctx, b.name, metav1.GetOptions{})
		if err == nil {
			obj, version = secret, secret.ResourceVersion
		}
	}
	if apierrors.IsNotFound(err) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return b.extractValue(obj), version, nil
}

func (b *Backend) extractValue(obj any) []byte {
	switch b.resourceType {
	case ConfigMap:
		if cm, ok := obj.(*corev1.ConfigMap); ok {
			if v, ok := cm.Data[b.key]; ok {
				return []byte(v)
			}
		}
	case Secret:
		if secret, ok := obj.(*corev1.Secret); ok {
			return secret.Data[b.key]
		}
	}
	return nil
}

var (
	_ bind.Backend = (*Backend)(nil)
	_ bind.Watcher = (*Backend)(nil)
)
