package di

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrValueNotFound 由 Environment 在找不到配置键时返回。
var ErrValueNotFound = errors.New("di: value not found")

// ErrContainerClosed 容器关闭后继续获取 Bean 时返回。
var ErrContainerClosed = errors.New("di: container is closed")

// NoSuchDefinitionError 按名称或类型查找定义失败。
type NoSuchDefinitionError struct {
	Name string
	Type reflect.Type
}

func (e *NoSuchDefinitionError) Error() string {
	if e.Type != nil && e.Name == "" {
		return fmt.Sprintf("di: no bean definition of type %s", e.Type)
	}
	return fmt.Sprintf("di: no bean definition named %q", e.Name)
}

// DuplicateDefinitionError 注册了已存在的名称且未允许覆盖。
type DuplicateDefinitionError struct {
	Name string
}

func (e *DuplicateDefinitionError) Error() string {
	return fmt.Sprintf("di: bean definition %q already registered", e.Name)
}

// AmbiguousDependencyError 按类型解析时存在多个候选且无法通过 primary 区分。
type AmbiguousDependencyError struct {
	Type       reflect.Type
	Candidates []string
}

func (e *AmbiguousDependencyError) Error() string {
	return fmt.Sprintf("di: expected a single bean of type %s but found %d: [%s]",
		e.Type, len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// CircularDependencyError 无法通过提前暴露引用打破的循环依赖。
// Chain 以首个重复出现的名称开头并以它结尾，例如 [a b a]。
type CircularDependencyError struct {
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("di: unresolvable circular dependency: %s", strings.Join(e.Chain, " -> "))
}

// CreationError 包装实例化、属性注入或初始化阶段的失败。
type CreationError struct {
	Name  string
	Cause error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("di: error creating bean %q: %v", e.Name, e.Cause)
}

func (e *CreationError) Unwrap() error { return e.Cause }

// DisposalError 包装单个 Bean 销毁钩子的失败。
type DisposalError struct {
	Name  string
	Cause error
}

func (e *DisposalError) Error() string {
	return fmt.Sprintf("di: error destroying bean %q: %v", e.Name, e.Cause)
}

func (e *DisposalError) Unwrap() error { return e.Cause }

// BeanNotOfRequiredTypeError GetBeanAs 得到的实例与期望类型不兼容。
type BeanNotOfRequiredTypeError struct {
	Name     string
	Required reflect.Type
	Actual   reflect.Type
}

func (e *BeanNotOfRequiredTypeError) Error() string {
	return fmt.Sprintf("di: bean %q is of type %v, expected %s", e.Name, e.Actual, e.Required)
}

// wrapCreation 保证错误链上只有最内层的 CreationError 带有 Bean 名称，
// 循环依赖等结构性错误原样向上传递。
func wrapCreation(name string, err error) error {
	if err == nil {
		return nil
	}
	var circular *CircularDependencyError
	if errors.As(err, &circular) {
		return err
	}
	var creation *CreationError
	if errors.As(err, &creation) && creation.Name == name {
		return err
	}
	return &CreationError{Name: name, Cause: err}
}
