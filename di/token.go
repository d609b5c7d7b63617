package di

import (
	"fmt"
	"reflect"
)

// Token 把 Bean 名称与期望类型绑定在一起，避免在调用处重复断言。
//
// 示例：
//
//	var PrimaryDB = di.NewToken[*gorm.DB]("primaryDB")
//
//	c.Register(di.NewDefinition(PrimaryDB.Name(), di.Constructor(openPrimary)))
//	db, _ := PrimaryDB.Get(c)
type Token[T any] struct {
	name string
	typ  reflect.Type
}

// NewToken 创建一个新的 Token
func NewToken[T any](name string) *Token[T] {
	return &Token[T]{
		name: name,
		typ:  TypeOf[T](),
	}
}

// Name 返回 Bean 名称
func (t *Token[T]) Name() string {
	return t.name
}

// Type 返回期望类型
func (t *Token[T]) Type() reflect.Type {
	return t.typ
}

// Ref 返回按名称引用该 Bean 的 BeanReference
func (t *Token[T]) Ref() *BeanReference {
	return Ref(t.name).OfType(t.typ)
}

// Get 从容器获取 Bean
func (t *Token[T]) Get(c BeanFactory) (T, error) {
	return GetNamed[T](c, t.name)
}

// String 返回 Token 的字符串表示
func (t *Token[T]) String() string {
	return fmt.Sprintf("Token[%s](%s)", t.typ, t.name)
}

// TypeOf 获取类型 T 的 reflect.Type
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
