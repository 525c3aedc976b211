package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/netdata/assets/manager/config"
	"github.com/netdata/assets/pkg/k8s"
	"github.com/netdata/assets/pkg/log"

	"github.com/rs/zerolog"
	apiv1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/util/workqueue"
)

// Config locates the assets document: the value of Key in the ConfigMap.
// An empty Namespace watches every namespace and follows the first one the
// ConfigMap is seen in.
type Config struct {
	Namespace string
	ConfigMap string
	Key       string
}

// ParseConfig reads "[namespace/]name:key".
func ParseConfig(s string) (Config, error) {
	ref, key, ok := strings.Cut(s, ":")
	if !ok {
		return Config{}, fmt.Errorf("config map '%s': expected [namespace/]name:key", s)
	}
	cfg := Config{ConfigMap: ref, Key: key}
	if ns, name, ok := strings.Cut(ref, "/"); ok {
		cfg.Namespace, cfg.ConfigMap = ns, name
	}
	return cfg, validateConfig(cfg)
}

func validateConfig(cfg Config) error {
	if cfg.ConfigMap == "" {
		return errors.New("config map not set")
	}
	if cfg.Key == "" {
		return errors.New("config map key not set")
	}
	return nil
}

// Provider sends the assets document stored under a ConfigMap key whenever
// the ConfigMap changes. A deleted ConfigMap or a missing key is sent as a
// removed config.
type Provider struct {
	namespace string
	pinned    string
	name      string
	key       string
	client    kubernetes.Interface
	inf       cache.SharedInformer
	queue     *workqueue.Type
	configCh  chan []config.Config
	started   chan struct{}
	log       zerolog.Logger
}

func NewProvider(cfg Config) (*Provider, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %v", err)
	}
	client, err := k8s.Clientset()
	if err != nil {
		return nil, fmt.Errorf("initialization: %v", err)
	}
	return newProvider(cfg, client), nil
}

func newProvider(cfg Config, client kubernetes.Interface) *Provider {
	return &Provider{
		namespace: cfg.Namespace,
		name:      cfg.ConfigMap,
		key:       cfg.Key,
		client:    client,
		configCh:  make(chan []config.Config),
		started:   make(chan struct{}),
		queue:     workqueue.NewNamed("assets configmap"),
		log:       log.New("k8s config provider"),
	}
}

func (p Provider) String() string {
	return source(p.namespace, p.name, p.key)
}

func (p *Provider) Configs() chan []config.Config {
	return p.configCh
}

func (p *Provider) Run(ctx context.Context) {
	p.log.Info().Msgf("instance is started, watching '%s'", p)
	defer p.log.Info().Msg("instance is stopped")
	defer p.queue.ShutDown()

	p.inf = p.setupInformer(ctx)
	go p.inf.Run(ctx.Done())

	if !cache.WaitForCacheSync(ctx.Done(), p.inf.HasSynced) {
		p.log.Error().Msg("unable to sync caches")
		return
	}

	go p.run(ctx)
	close(p.started)

	<-ctx.Done()
}

const resyncPeriod = 10 * time.Minute

func (p *Provider) setupInformer(ctx context.Context) cache.SharedInformer {
	client := p.client.CoreV1().ConfigMaps(p.namespace)
	lw := &cache.ListWatch{
		ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
			return client.List(ctx, options)
		},
		WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
			return client.Watch(ctx, options)
		},
	}
	inf := cache.NewSharedInformer(lw, &apiv1.ConfigMap{}, resyncPeriod)
	inf.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc:    p.enqueue,
		UpdateFunc: func(_, obj interface{}) { p.enqueue(obj) },
		DeleteFunc: p.enqueue,
	})
	return inf
}

func (p *Provider) enqueue(obj interface{}) {
	if tomb, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tomb.Obj
	}
	cm, err := toConfigMap(obj)
	if err != nil || cm.Name != p.name {
		return
	}
	if !p.inNamespace(cm.Namespace) {
		return
	}
	key, err := cache.MetaNamespaceKeyFunc(cm)
	if err != nil {
		return
	}
	p.queue.Add(key)
}

// inNamespace is called from the informer handler only.
func (p *Provider) inNamespace(ns string) bool {
	if p.namespace != apiv1.NamespaceAll {
		return p.namespace == ns
	}
	if p.pinned == "" {
		p.pinned = ns
		p.log.Info().Msgf("following configmap '%s' in namespace '%s'", p.name, ns)
	}
	if p.pinned != ns {
		p.log.Warn().Msgf("ignoring configmap '%s' in namespace '%s', following namespace '%s'", p.name, ns, p.pinned)
		return false
	}
	return true
}

func (p *Provider) run(ctx context.Context) {
	for {
		item, shutdown := p.queue.Get()
		if shutdown {
			return
		}
		p.process(ctx, item.(string))
		p.queue.Done(item)
	}
}

func (p *Provider) process(ctx context.Context, key string) {
	namespace, name, err := cache.SplitMetaNamespaceKey(key)
	if err != nil {
		return
	}
	cfg := config.Config{Source: source(namespace, name, p.key)}

	obj, exists, err := p.inf.GetStore().GetByKey(key)
	if err != nil {
		p.log.Warn().Err(err).Msgf("get '%s' from the store", key)
		return
	}
	if !exists {
		p.log.Info().Msgf("configmap '%s' is deleted", key)
		p.send(ctx, cfg)
		return
	}

	cm, err := toConfigMap(obj)
	if err != nil {
		return
	}
	data, ok := cm.Data[p.key]
	if !ok {
		p.log.Debug().Msgf("configmap '%s' has no '%s' key", key, p.key)
		p.send(ctx, cfg)
		return
	}

	cfg.Data = append([]byte{}, data...)
	p.send(ctx, cfg)
}

func (p *Provider) send(ctx context.Context, cfg config.Config) {
	select {
	case <-ctx.Done():
	case p.configCh <- []config.Config{cfg}:
	}
}

func source(ns, name, key string) string {
	return fmt.Sprintf("k8s/configmap/%s/%s:%s", ns, name, key)
}

func toConfigMap(obj interface{}) (*apiv1.ConfigMap, error) {
	cm, ok := obj.(*apiv1.ConfigMap)
	if !ok {
		return nil, fmt.Errorf("received unexpected object type: %T", obj)
	}
	return cm, nil
}
