package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/ioc/di"
)

// BeanInfo 一个定义的概要
type BeanInfo struct {
	Name      string   `json:"name"`
	Type      string   `json:"type,omitempty"`
	Scope     string   `json:"scope"`
	Role      string   `json:"role"`
	Primary   bool     `json:"primary"`
	Lazy      bool     `json:"lazy"`
	Priority  int      `json:"priority"`
	Created   bool     `json:"created"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

func describe(c *di.Container, def *di.BeanDefinition) BeanInfo {
	info := BeanInfo{
		Name:      def.Name,
		Scope:     def.Scope,
		Role:      def.Role.String(),
		Primary:   def.Primary,
		Lazy:      def.LazyInit,
		Priority:  def.Priority,
		Created:   c.IsCreated(def.Name),
		DependsOn: def.DependsOn,
	}
	if info.Scope == "" {
		info.Scope = di.ScopeSingleton
	}
	if t, err := c.GetType(def.Name); err == nil && t != nil {
		info.Type = t.String()
	}
	return info
}

// MountIntrospection 挂载容器查询接口：
//
//	GET  /beans               全部定义
//	GET  /beans/:name         单个定义
//	POST /beans/refresh       淘汰 refresh 作用域中的全部实例
//	POST /beans/:name/refresh 淘汰单个实例
func MountIntrospection(router gin.IRouter, c *di.Container) {
	router.GET("/beans", func(ctx *gin.Context) {
		names := c.DefinitionNames()
		beans := make([]BeanInfo, 0, len(names))
		for _, name := range names {
			def, err := c.Definition(name)
			if err != nil {
				continue
			}
			beans = append(beans, describe(c, def))
		}
		ctx.JSON(http.StatusOK, beans)
	})

	router.GET("/beans/:name", func(ctx *gin.Context) {
		def, err := c.Definition(ctx.Param("name"))
		if err != nil {
			abort(ctx, err)
			return
		}
		ctx.JSON(http.StatusOK, describe(c, def))
	})

	router.POST("/beans/refresh", func(ctx *gin.Context) {
		if err := c.RefreshScope().Refresh(); err != nil {
			abort(ctx, err)
			return
		}
		ctx.Status(http.StatusNoContent)
	})

	router.POST("/beans/:name/refresh", func(ctx *gin.Context) {
		name := ctx.Param("name")
		if !c.ContainsBean(name) {
			abort(ctx, &di.NoSuchDefinitionError{Name: name})
			return
		}
		if err := c.RefreshScope().RefreshBean(name); err != nil {
			abort(ctx, err)
			return
		}
		ctx.Status(http.StatusNoContent)
	})
}

func abort(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	var missing *di.NoSuchDefinitionError
	if errors.As(err, &missing) {
		status = http.StatusNotFound
	}
	ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
