package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"engagement-ledger/pkg/errutil"
	"engagement-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxLoggedBody caps how much of a request body is kept for the rejection log.
const maxLoggedBody = 8 << 10

// Error renders the last error pushed with c.Error. errutil.BaseError keeps
// its own status and reason and is logged at WARN with the request that
// caused it. Anything else is logged and reported as 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		body := captureBody(c)

		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		zapLog := logger.FromContext(c.Request.Context()).With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Any("params", routeParams(c)),
			zap.ByteString("body", body),
		)

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			zapLog.Warn("request rejected",
				zap.Int("status", be.Code.HTTPStatus()),
				zap.String("reason", be.Reason),
				zap.Error(last.Err),
			)
			c.JSON(be.Code.HTTPStatus(), be.JSON())
			return
		}

		zapLog.Error("unhandled request error", zap.Error(last.Err))
		internal := errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}
		c.JSON(http.StatusInternalServerError, internal.JSON())
	}
}

// captureBody keeps a copy of the first maxLoggedBody bytes and hands the
// handler an unchanged body.
func captureBody(c *gin.Context) []byte {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	head, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLoggedBody))
	if err != nil {
		return nil
	}
	c.Request.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(head), c.Request.Body),
		Closer: c.Request.Body,
	}
	return head
}

type readCloser struct {
	io.Reader
	io.Closer
}

func routeParams(c *gin.Context) map[string]string {
	if len(c.Params) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		out[p.Key] = p.Value
	}
	return out
}
