package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tathmini/core/attempt"
)

type attemptApi struct {
	service *attempt.Service
}

func registerAttemptAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attempt.Service) {
	api := attemptApi{service: svc}

	tg := g.Group("/tests/:id", jwt)
	tg.POST("/attempts", api.attemptStart)
	tg.GET("/attempts", api.attemptQuery)

	ag := g.Group("/attempts/:id", jwt)
	ag.GET("", api.attemptRetrieve)
	ag.POST("/answers", api.answerSubmit)
	ag.POST("/complete", api.attemptComplete)
}

// Handlers

func (api *attemptApi) attemptStart(ctx echo.Context) error {
	testID, id, err := pathIdentity(ctx)
	if err != nil {
		return err
	}
	att, err := api.service.StartAttempt(ctx.Request().Context(), id.UserID, testID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, att)
}

func (api *attemptApi) attemptQuery(ctx echo.Context) error {
	testID, id, err := pathIdentity(ctx)
	if err != nil {
		return err
	}
	atts, err := api.service.ListUserAttempts(ctx.Request().Context(), id.UserID, testID)
	if err != nil {
		return err
	}
	if atts == nil {
		atts = []attempt.Attempt{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *attemptApi) attemptRetrieve(ctx echo.Context) error {
	attemptID, id, err := pathIdentity(ctx)
	if err != nil {
		return err
	}
	att, err := api.service.GetAttempt(ctx.Request().Context(), attemptID, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attemptApi) answerSubmit(ctx echo.Context) error {
	attemptID, id, err := pathIdentity(ctx)
	if err != nil {
		return err
	}
	data := new(attempt.SubmitAnswerInput)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	data.AttemptID = attemptID
	data.UserID = id.UserID

	res, err := api.service.SubmitAnswer(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *attemptApi) attemptComplete(ctx echo.Context) error {
	attemptID, id, err := pathIdentity(ctx)
	if err != nil {
		return err
	}
	sum, err := api.service.CompleteAttempt(ctx.Request().Context(), attemptID, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}
