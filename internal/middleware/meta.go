package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

type responseMeta struct {
	started time.Time
	values  map[string]interface{}
}

// WithResponseMeta starts a per-request metadata bag whose values handlers may
// attach to the response envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now(), values: map[string]interface{}{}})
		c.Next()
	}
}

// SetMeta records a metadata value for the current request.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if m := lookupMeta(c); m != nil {
		m.values[key] = value
	}
}

// ExtractMeta returns the recorded values stamped with the elapsed handling
// time, or nil when the middleware is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	m := lookupMeta(c)
	if m == nil {
		return nil
	}
	m.values["processing_time_ms"] = time.Since(m.started).Milliseconds()
	return m.values
}

func lookupMeta(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	v, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	m, _ := v.(*responseMeta)
	return m
}
