package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var openapiYAML []byte

// loadOpenAPI はAPI定義を読み込んで検証する
func loadOpenAPI(ctx context.Context, data []byte) (*openapi3.T, error) {
	doc, err := openapi3.NewLoader().LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("API定義の読み込みに失敗: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("API定義が不正です: %w", err)
	}
	return doc, nil
}

// requestValidator はAPI定義に従ってリクエストのパラメータを検証する
type requestValidator struct {
	router  routers.Router
	options *openapi3filter.Options
}

func newRequestValidator(doc *openapi3.T) (*requestValidator, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("API定義のルーター作成に失敗: %w", err)
	}
	return &requestValidator{
		router: router,
		options: &openapi3filter.Options{
			ExcludeRequestBody: true,
		},
	}, nil
}

// middleware は定義に反するリクエストを400で打ち切る
// 定義に無いパスはそのまま gin のルーティングに任せる。
func (v *requestValidator) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    v.options,
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			abortWithError(c, http.StatusBadRequest, validationCode(err), err.Error())
			return
		}
		c.Next()
	}
}

// validationCode はエラー応答のコードを決める
func validationCode(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) && reqErr.Parameter != nil {
		return "invalid_" + reqErr.Parameter.Name
	}
	return "invalid_request"
}
