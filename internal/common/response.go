package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	FailWithData(c, httpStatus, code, msg, nil)
}

// FailWithData is Fail with a payload, used when the client needs remediation hints.
func FailWithData(c *gin.Context, httpStatus int, code int, msg string, data any) {
	c.AbortWithStatusJSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    data,
	})
}
