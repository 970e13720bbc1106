package middleware

import (
	"errors"
	"fmt"

	pkgError "github.com/AzielCF/az-publisher/pkg/error"
	"github.com/AzielCF/az-publisher/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func Recovery() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			var res utils.ResponseData
			res.Status = 500
			res.Code = "INTERNAL_SERVER_ERROR"
			res.Message = fmt.Sprintf("%v", rec)

			var generic pkgError.GenericError
			if err, ok := rec.(error); ok && errors.As(err, &generic) {
				res.Status = generic.StatusCode()
				res.Code = generic.ErrCode()
				res.Message = err.Error()
			}

			if res.Status >= 500 {
				logrus.Errorf("[REST] panic recovered on %s %s: %v", ctx.Method(), ctx.Path(), rec)
			} else {
				logrus.Debugf("[REST] %s %s rejected: %s", ctx.Method(), ctx.Path(), res.Message)
			}

			_ = ctx.Status(res.Status).JSON(res)
		}()

		return ctx.Next()
	}
}
