// Package yamldef 从 YAML 文件读取 Bean 定义的元数据。
//
// 工厂无法在 YAML 中表达，需要由代码按名称提供；文件只描述作用域、依赖和注入：
//
//	beans:
//	  - name: dataSource
//	    priority: 10
//	    destroy: [Close]
//	  - name: userRepo
//	    scope: prototype
//	    dependsOn: [dataSource]
//	    properties:
//	      - field: DB
//	        ref: dataSource
//	      - field: PageSize
//	        value: repo.pageSize
//	        optional: true
//	  - name: report
//	    factoryBean: userRepo
//	    factoryMethod: NewReport
package yamldef

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gocrud/ioc/di"
)

// File 一个定义文件
type File struct {
	Beans []Bean `yaml:"beans"`
}

// Bean 单个 Bean 的元数据
type Bean struct {
	Name          string     `yaml:"name"`
	Scope         string     `yaml:"scope"`
	Primary       bool       `yaml:"primary"`
	Lazy          bool       `yaml:"lazy"`
	Autowire      *bool      `yaml:"autowire"`
	Priority      *int       `yaml:"priority"`
	Role          string     `yaml:"role"`
	DependsOn     []string   `yaml:"dependsOn"`
	Init          []string   `yaml:"init"`
	Destroy       []string   `yaml:"destroy"`
	FactoryBean   string     `yaml:"factoryBean"`
	FactoryMethod string     `yaml:"factoryMethod"`
	Args          []Property `yaml:"args"`
	Properties    []Property `yaml:"properties"`
}

// Property 一次注入。ref、value、autowire、collect、literal 只能出现一个
type Property struct {
	Field    string `yaml:"field"`
	Setter   string `yaml:"setter"`
	Ref      string `yaml:"ref"`
	Value    string `yaml:"value"`
	Autowire bool   `yaml:"autowire"`
	Collect  bool   `yaml:"collect"`
	Literal  any    `yaml:"literal"`
	Optional bool   `yaml:"optional"`
	Lazy     bool   `yaml:"lazy"`
}

// Factories Bean 名称到实例工厂
type Factories map[string]di.InstanceFactory

// Parse 解析定义文件内容
func Parse(data []byte) (*File, error) {
	return Decode(bytes.NewReader(data))
}

// Decode 从 r 读取定义，未知字段视为错误
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("yamldef: %w", err)
	}
	return &f, nil
}

// Load 读取定义文件
func Load(path string) (*File, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	f, err := Decode(fd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Definitions 把元数据与工厂合并为定义
func (f *File) Definitions(factories Factories) ([]*di.BeanDefinition, error) {
	defs := make([]*di.BeanDefinition, 0, len(f.Beans))
	for i, b := range f.Beans {
		def, err := b.Definition(factories)
		if err != nil {
			return nil, fmt.Errorf("yamldef: beans[%d]: %w", i, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Register 按文件顺序注册全部定义
func (f *File) Register(c *di.Container, factories Factories) error {
	defs, err := f.Definitions(factories)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Definition 生成单个定义。声明了 factoryBean 时使用方法工厂，否则从 factories 中按名称取。
func (b Bean) Definition(factories Factories) (*di.BeanDefinition, error) {
	if b.Name == "" {
		return nil, errors.New("name is required")
	}

	factory, err := b.factory(factories)
	if err != nil {
		return nil, fmt.Errorf("bean %q: %w", b.Name, err)
	}
	opts, err := b.Options()
	if err != nil {
		return nil, fmt.Errorf("bean %q: %w", b.Name, err)
	}
	return di.NewDefinition(b.Name, factory, opts...), nil
}

func (b Bean) factory(factories Factories) (di.InstanceFactory, error) {
	args := make([]any, len(b.Args))
	for i, a := range b.Args {
		v, err := a.value()
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		args[i] = v
	}

	if b.FactoryBean != "" {
		if b.FactoryMethod == "" {
			return nil, errors.New("factoryBean needs factoryMethod")
		}
		return di.Method(b.FactoryBean, b.FactoryMethod, args...), nil
	}

	factory, ok := factories[b.Name]
	if !ok {
		return nil, errors.New("no factory provided")
	}
	if len(args) > 0 {
		return factory.WithArgs(args)
	}
	return factory, nil
}

// Options 元数据对应的定义选项
func (b Bean) Options() ([]di.Option, error) {
	var opts []di.Option
	if b.Scope != "" {
		opts = append(opts, di.WithScope(b.Scope))
	}
	if b.Primary {
		opts = append(opts, di.Primary())
	}
	if b.Lazy {
		opts = append(opts, di.LazyInit())
	}
	if b.Autowire != nil && !*b.Autowire {
		opts = append(opts, di.NotAutowireCandidate())
	}
	if b.Priority != nil {
		opts = append(opts, di.WithPriority(*b.Priority))
	}
	if b.Role != "" {
		role, err := di.ParseRole(b.Role)
		if err != nil {
			return nil, err
		}
		opts = append(opts, di.WithRole(role))
	}
	if len(b.DependsOn) > 0 {
		opts = append(opts, di.DependsOn(b.DependsOn...))
	}
	if len(b.Init) > 0 {
		opts = append(opts, di.InitMethod(b.Init...))
	}
	if len(b.Destroy) > 0 {
		opts = append(opts, di.DestroyMethod(b.Destroy...))
	}

	for i, p := range b.Properties {
		v, err := p.value()
		if err != nil {
			return nil, fmt.Errorf("properties[%d]: %w", i, err)
		}
		switch {
		case p.Field != "" && p.Setter != "":
			return nil, fmt.Errorf("properties[%d]: field and setter are exclusive", i)
		case p.Field != "":
			opts = append(opts, di.WithProperty(p.Field, v))
		case p.Setter != "":
			opts = append(opts, di.WithSetter(p.Setter, v))
		default:
			return nil, fmt.Errorf("properties[%d]: field or setter is required", i)
		}
	}
	return opts, nil
}

// value 转换为引用或字面值
func (p Property) value() (any, error) {
	var ref *di.BeanReference
	set := 0
	if p.Ref != "" {
		ref, set = di.Ref(p.Ref), set+1
	}
	if p.Value != "" {
		ref, set = di.ValueRef(p.Value), set+1
	}
	if p.Autowire {
		ref, set = di.RefType(nil), set+1
	}
	if p.Collect {
		ref, set = di.CollectBeans(nil), set+1
	}
	if p.Literal != nil {
		set++
	}

	switch {
	case set > 1:
		return nil, errors.New("ref, value, autowire, collect and literal are exclusive")
	case set == 0:
		return nil, errors.New("one of ref, value, autowire, collect or literal is required")
	case ref == nil:
		if p.Optional || p.Lazy {
			return nil, errors.New("optional and lazy apply to references only")
		}
		return p.Literal, nil
	}

	if p.Optional {
		ref = ref.Optional()
	}
	if p.Lazy {
		ref = ref.AsLazy()
	}
	return ref, nil
}
