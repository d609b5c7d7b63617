package di

import (
	"cmp"
	"reflect"
	"slices"
	"sync"
)

// registry 保存名称到定义的映射，并缓存按类型查找的结果。
//
// 任何结构性修改都会使类型索引和有序单例名称缓存失效。
type registry struct {
	mu            sync.RWMutex
	defs          map[string]*BeanDefinition
	names         []string
	allowOverride bool
	lookup        TypeLookup

	generation  uint64
	typeIndex   map[reflect.Type][]string
	prioritized []string
}

func newRegistry(lookup TypeLookup, allowOverride bool) *registry {
	return &registry{
		defs:          make(map[string]*BeanDefinition),
		allowOverride: allowOverride,
		lookup:        lookup,
		typeIndex:     make(map[reflect.Type][]string),
	}
}

func (r *registry) register(def *BeanDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		if !r.allowOverride {
			return &DuplicateDefinitionError{Name: def.Name}
		}
	} else {
		r.names = append(r.names, def.Name)
	}
	r.defs[def.Name] = def
	r.invalidate()
	return nil
}

func (r *registry) remove(name string) (*BeanDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, &NoSuchDefinitionError{Name: name}
	}
	delete(r.defs, name)
	r.names = slices.DeleteFunc(r.names, func(n string) bool { return n == name })
	r.invalidate()
	return def, nil
}

// invalidate 调用方需持有写锁
func (r *registry) invalidate() {
	r.generation++
	clear(r.typeIndex)
	r.prioritized = nil
}

func (r *registry) get(name string) (*BeanDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	if !ok {
		return nil, &NoSuchDefinitionError{Name: name}
	}
	return def, nil
}

func (r *registry) contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.defs[name]
	return ok
}

func (r *registry) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// snapshot 按注册顺序返回定义
func (r *registry) snapshot() ([]*BeanDefinition, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*BeanDefinition, len(r.names))
	for i, name := range r.names {
		defs[i] = r.defs[name]
	}
	return defs, r.generation
}

// namesForType 返回可自动装配且类型兼容的定义名称，按注册顺序。
//
// 计算产物类型可能回调 lookup，因此扫描在锁外进行，
// 只有在期间没有发生修改时才写入缓存。
func (r *registry) namesForType(t reflect.Type) []string {
	r.mu.RLock()
	cached, ok := r.typeIndex[t]
	r.mu.RUnlock()
	if ok {
		return slices.Clone(cached)
	}

	defs, gen := r.snapshot()
	names := make([]string, 0)
	for _, def := range defs {
		if !def.AutowireCandidate || def.Role == RoleProxyTemporary {
			continue
		}
		if compatible(t, def.beanType(r.lookup)) {
			names = append(names, def.Name)
		}
	}

	r.mu.Lock()
	if r.generation == gen {
		r.typeIndex[t] = names
	}
	r.mu.Unlock()
	return slices.Clone(names)
}

// prioritizedSingletons 单例定义名称，按优先级升序，同优先级保持注册顺序。
func (r *registry) prioritizedSingletons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prioritized != nil {
		return slices.Clone(r.prioritized)
	}

	defs := make([]*BeanDefinition, 0, len(r.names))
	for _, name := range r.names {
		if def := r.defs[name]; def.IsSingleton() {
			defs = append(defs, def)
		}
	}
	slices.SortStableFunc(defs, func(a, b *BeanDefinition) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	r.prioritized = make([]string, len(defs))
	for i, def := range defs {
		r.prioritized[i] = def.Name
	}
	return slices.Clone(r.prioritized)
}

// sortByPriority 对名称按定义优先级稳定排序
func (r *registry) sortByPriority(names []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slices.SortStableFunc(names, func(a, b string) int {
		da, db := r.defs[a], r.defs[b]
		if da == nil || db == nil {
			return 0
		}
		return cmp.Compare(da.Priority, db.Priority)
	})
	return names
}
