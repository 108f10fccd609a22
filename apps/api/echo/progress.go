package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tathmini/core/progress"
)

type progressApi struct {
	service *progress.Service
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *progress.Service) {
	api := progressApi{service: svc}

	g.POST("/progress/exercise", api.recordExercise, jwt)
	g.GET("/courses/:id/progress", api.courseProgress, jwt)
	g.GET("/me/points", api.myPoints, jwt)
}

// Handlers

func (api *progressApi) recordExercise(ctx echo.Context) error {
	id, err := contextIdentity(ctx)
	if err != nil {
		return err
	}
	data := new(progress.ExerciseCompletionInput)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	data.UserID = id.UserID

	res, err := api.service.RecordExerciseCompletion(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *progressApi) courseProgress(ctx echo.Context) error {
	courseID, id, err := pathIdentity(ctx)
	if err != nil {
		return err
	}
	enr, err := api.service.GetCourseProgress(ctx.Request().Context(), id.UserID, courseID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *progressApi) myPoints(ctx echo.Context) error {
	id, err := contextIdentity(ctx)
	if err != nil {
		return err
	}
	pts, err := api.service.GetUserPoints(ctx.Request().Context(), id.UserID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pts)
}
