package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/sockrpc/client"
)

type RouterOptions struct {
	Client   *client.Client
	Counters *client.Counters

	// CallTimeout bounds every proxied call, zero means no bound
	CallTimeout time.Duration

	DebugHTTP bool
	Log       *zap.Logger
}

type statusResponse struct {
	Connected  bool   `json:"connected"`
	Generation uint64 `json:"generation"`
	Pending    int    `json:"pending"`
}

type callResponse struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type errorResponse struct {
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Type    string          `json:"type,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// NewRouter builds the HTTP front served by `sockrpc proxy`.
func NewRouter(options RouterOptions) *gin.Engine {
	r := setupRouter(options.DebugHTTP, options.Log)

	// Ping test
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, statusResponse{
			Connected:  options.Client.IsConnected(),
			Generation: options.Client.Generation(),
			Pending:    options.Client.Pending(),
		})
	})

	r.GET("/metrics", func(c *gin.Context) {
		if options.Counters == nil {
			c.JSON(http.StatusOK, client.CountersSnapshot{})
			return
		}

		c.JSON(http.StatusOK, options.Counters.Snapshot())
	})

	r.POST("/call/:command", func(c *gin.Context) {
		proxyCall(c, options)
	})

	return r
}

func proxyCall(c *gin.Context, options RouterOptions) {
	command := c.Param("command")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Kind: "invalid_request", Message: err.Error()})
		return
	}

	var payload json.RawMessage
	if len(body) > 0 {
		if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
			c.JSON(http.StatusBadRequest, errorResponse{Kind: "invalid_request", Message: errPayloadNotObject.Error()})
			return
		}
		payload = body
	}

	ctx := c.Request.Context()
	if options.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.CallTimeout)
		defer cancel()
	}

	var (
		respType string
		data     json.RawMessage
	)

	switch expected := c.Query("expect"); {
	case c.Query("v1") == "true":
		respType = command
		data, err = options.Client.CallV1(ctx, command, payload)

	case expected != "":
		respType = expected
		data, err = options.Client.Call(ctx, command, expected, payload)

	default:
		respType, data, err = options.Client.Request(ctx, command, payload)
	}

	if err != nil {
		status, resp := errorStatus(err)
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, callResponse{Type: respType, Data: data})
}

// errorStatus maps a request failure to an HTTP status and body.
func errorStatus(err error) (int, errorResponse) {
	kind := client.KindOf(err)
	resp := errorResponse{Kind: kind.String(), Message: err.Error()}

	var (
		unexpResp *client.UnexpectedResponseError
		respErr   *client.ResponseError
	)

	switch {
	case errors.As(err, &unexpResp):
		resp.Type = unexpResp.Type
		return http.StatusBadGateway, resp

	case errors.As(err, &respErr):
		resp.Type = respErr.Type
		resp.Error = respErr.Raw
		return http.StatusUnprocessableEntity, resp

	case kind == client.KindNotConnected:
		return http.StatusServiceUnavailable, resp

	case kind == client.KindUnexpectedError:
		return http.StatusBadGateway, resp

	case errors.Is(err, context.DeadlineExceeded):
		resp.Kind = "timeout"
		return http.StatusGatewayTimeout, resp

	default:
		return http.StatusInternalServerError, resp
	}
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}
